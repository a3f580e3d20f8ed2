package mova

import "errors"

// Event bus failures.
var (
	ErrInvalidEvent        = errors.New("mova: event failed validation")
	ErrInvalidSubscription = errors.New("mova: subscription spec rejected")
	ErrSubscriptionClosed  = errors.New("mova: subscription closed")
	// ErrEventDropped is returned when a full queue sheds an event instead of
	// blocking the publisher.
	ErrEventDropped = errors.New("mova: queue full, event dropped")
)

// Registration and lookup failures.
var (
	ErrServiceAlreadyRegistered = errors.New("mova: duplicate service name")
	ErrServiceNotFound          = errors.New("mova: no such service")
	ErrServiceType              = errors.New("mova: service type mismatch")
	ErrModuleAlreadyRegistered  = errors.New("mova: duplicate module name")
	ErrDriverAlreadyRegistered  = errors.New("mova: duplicate driver")
)

// Outbound failures raised before a platform is contacted.
var (
	ErrInvalidOutboundRequest = errors.New("mova: malformed outbound request")
	// ErrOutboundUnsupported means no sink can carry the request, either
	// because none matches the target or the platform lacks the operation.
	ErrOutboundUnsupported = errors.New("mova: no sink supports request")
)
