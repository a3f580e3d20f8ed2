package telegram

import (
	"errors"
	"strings"

	"mova-bot/pkg/mova"

	"github.com/gotd/td/tgerr"
)

// rpcErrorMessageNotModified is returned when an edit leaves a message as is.
const rpcErrorMessageNotModified = "MESSAGE_NOT_MODIFIED"

// mediaRejectionTypes are RPC error types raised when Telegram cannot fetch
// or accept a photo given by URL.
var mediaRejectionTypes = map[string]struct{}{
	"WEBPAGE_CURL_FAILED":      {},
	"WEBPAGE_MEDIA_EMPTY":      {},
	"MEDIA_EMPTY":              {},
	"MEDIA_INVALID":            {},
	"PHOTO_INVALID_DIMENSIONS": {},
	"PHOTO_EXT_INVALID":        {},
	"IMAGE_PROCESS_FAILED":     {},
}

// recipientGoneTypes are RPC error types after which retrying the same
// conversation cannot succeed.
var recipientGoneTypes = map[string]struct{}{
	"USER_IS_BLOCKED":        {},
	"USER_DEACTIVATED":       {},
	"INPUT_USER_DEACTIVATED": {},
	"PEER_ID_INVALID":        {},
	"CHAT_WRITE_FORBIDDEN":   {},
	"CHANNEL_PRIVATE":        {},
	"QUERY_ID_INVALID":       {},
}

// mapTelegramOutboundError classifies an RPC failure into a mova.OutboundError.
// Request validation errors pass through unchanged.
func mapTelegramOutboundError(
	operation mova.OutboundOperation,
	sink mova.EventSource,
	err error,
) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mova.ErrInvalidOutboundRequest) {
		return err
	}

	mapped := &mova.OutboundError{
		Operation: operation,
		Kind:      mova.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}
	if rpcErr, ok := tgerr.As(err); ok {
		mapped.Code = rpcErr.Code
		mapped.Type = rpcErr.Type
		mapped.Kind = classifyTelegramRPCError(operation, rpcErr)
	}
	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		mapped.Kind = mova.OutboundErrorKindRateLimited
		mapped.RetryAfter = retryAfter
	}

	return mapped
}

// classifyTelegramRPCError maps well-known error types first and falls back
// to the numeric code.
func classifyTelegramRPCError(operation mova.OutboundOperation, rpcErr *tgerr.Error) mova.OutboundErrorKind {
	if rpcErr == nil {
		return mova.OutboundErrorKindUnknown
	}

	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	if _, media := mediaRejectionTypes[errorType]; media && operation == mova.OutboundOperationSendPhoto {
		return mova.OutboundErrorKindMediaRejected
	}
	if _, gone := recipientGoneTypes[errorType]; gone {
		return mova.OutboundErrorKindPermanent
	}
	if rpcErr.Code == 420 || rpcErr.Code == 429 || strings.HasPrefix(errorType, "FLOOD") {
		return mova.OutboundErrorKindRateLimited
	}

	switch {
	case rpcErr.Code == 303 || rpcErr.Code >= 500:
		return mova.OutboundErrorKindTemporary
	case rpcErr.Code >= 400 && rpcErr.Code < 500:
		return mova.OutboundErrorKindPermanent
	default:
		return mova.OutboundErrorKindUnknown
	}
}

// isMessageNotModified reports whether an edit failed only because the
// message already had the requested content.
func isMessageNotModified(err error) bool {
	return tgerr.Is(err, rpcErrorMessageNotModified)
}
