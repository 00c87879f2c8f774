// Package server defines the error taxonomy reported back to individual
// connections. Every error here is local to the connection that triggered it;
// presence changes are the only global broadcasts.
package server

import "errors"

// Errors surfaced to a single calling connection.
var (
	// ErrAuthRequired: an operation was attempted before login.
	ErrAuthRequired = errors.New("not authenticated")

	// ErrChatNotFound: the referenced chat does not exist in the store.
	ErrChatNotFound = errors.New("chat not found")

	// ErrStoreWrite: the durable store rejected or failed an operation.
	ErrStoreWrite = errors.New("store operation failed")

	// ErrStoreTimeout: a durable store call exceeded its deadline.
	ErrStoreTimeout = errors.New("store operation timed out")
)

// Stable machine codes carried in error frames.
const (
	codeAuthRequired = "auth_required"
	codeChatNotFound = "chat_not_found"
	codeStoreError   = "store_error"
	codeStoreTimeout = "store_timeout"
	codeInternal     = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthRequired):
		return codeAuthRequired
	case errors.Is(err, ErrChatNotFound):
		return codeChatNotFound
	case errors.Is(err, ErrStoreTimeout):
		return codeStoreTimeout
	case errors.Is(err, ErrStoreWrite):
		return codeStoreError
	default:
		return codeInternal
	}
}

// errorFrame builds the outbound error event for err.
func errorFrame(err error) []byte {
	return encodeEvent(errorEvent{
		Type:    EventError,
		Code:    errorCode(err),
		Message: err.Error(),
	})
}
