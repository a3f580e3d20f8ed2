package mova

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OutboundOperation names a SinkDispatcher method in errors and logs.
type OutboundOperation string

const (
	OutboundOperationSendMessage    OutboundOperation = "send_message"
	OutboundOperationSendPhoto      OutboundOperation = "send_photo"
	OutboundOperationAnswerCallback OutboundOperation = "answer_callback"
	OutboundOperationClearKeyboard  OutboundOperation = "clear_keyboard"
)

// OutboundErrorKind tells a caller what it may do after a failed send.
type OutboundErrorKind string

const (
	// OutboundErrorKindRateLimited: wait RetryAfter, then retry.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	// OutboundErrorKindTemporary: retry later.
	OutboundErrorKindTemporary OutboundErrorKind = "temporary"
	// OutboundErrorKindPermanent: do not retry.
	OutboundErrorKindPermanent OutboundErrorKind = "permanent"
	// OutboundErrorKindMediaRejected: the platform refused the linked media;
	// the same content can go out as text.
	OutboundErrorKindMediaRejected OutboundErrorKind = "media_rejected"
	OutboundErrorKindUnknown       OutboundErrorKind = "unknown"
)

// OutboundError is the error every SinkDispatcher failure is wrapped in.
type OutboundError struct {
	Operation  OutboundOperation
	Kind       OutboundErrorKind
	Platform   Platform
	SinkID     string
	RetryAfter time.Duration
	// Platform RPC error, when there was one.
	Code  int
	Type  string
	Cause error
}

// Error renders "<operation> via <platform>/<sink>: <kind> [<detail>]: <cause>",
// leaving out whatever is unknown.
func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString(cmp.Or(string(e.Operation), "outbound"))
	if e.Platform != "" || e.SinkID != "" {
		fmt.Fprintf(&b, " via %s/%s", e.Platform, e.SinkID)
	}
	b.WriteString(": ")
	b.WriteString(cmp.Or(string(e.Kind), string(OutboundErrorKindUnknown)))

	var detail []string
	if e.Type != "" {
		detail = append(detail, e.Type)
	}
	if e.Code != 0 {
		detail = append(detail, strconv.Itoa(e.Code))
	}
	if e.RetryAfter > 0 {
		detail = append(detail, "retry in "+e.RetryAfter.String())
	}
	if len(detail) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(detail, ", "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsOutboundError finds the OutboundError in err's chain.
func AsOutboundError(err error) (*OutboundError, bool) {
	return errors.AsType[*OutboundError](err)
}

// AsOutboundRateLimit reports whether err is a rate limit and how long to
// wait. The wait is zero when the platform gave no hint.
func AsOutboundRateLimit(err error) (time.Duration, bool) {
	if outboundErr, ok := AsOutboundError(err); ok && outboundErr.Kind == OutboundErrorKindRateLimited {
		return outboundErr.RetryAfter, true
	}

	return 0, false
}

// IsOutboundMediaRejected reports whether the platform refused err's media.
func IsOutboundMediaRejected(err error) bool {
	outboundErr, ok := AsOutboundError(err)

	return ok && outboundErr.Kind == OutboundErrorKindMediaRejected
}
