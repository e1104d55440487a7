package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrAuthorizationDenied = fmt.Errorf("room access denied")
	ErrNotJoined           = fmt.Errorf("session has not joined the room")
	ErrEmptyContent        = fmt.Errorf("message content is empty")
	ErrValidation          = fmt.Errorf("invalid payload")
	ErrRoomInactive        = fmt.Errorf("room is closed")
	ErrRoomNotFound        = fmt.Errorf("room not found")
	ErrStoreUnavailable    = fmt.Errorf("message store unavailable")
	ErrSequenceConflict    = fmt.Errorf("sequence number already assigned")
	ErrRateLimited         = fmt.Errorf("too many frames")
	ErrSlowConsumer        = fmt.Errorf("session outbound buffer is full")
	ErrHandlerPanic        = fmt.Errorf("handler panic")
	ErrInvalidToken        = fmt.Errorf("invalid or expired token")
	ErrInvalidRecord       = fmt.Errorf("invalid stored record")
)

// Code is the error taxonomy surfaced to clients.
type Code string

const (
	CodeAuthorizationDenied Code = "AUTHORIZATION_DENIED"
	CodeNotJoined           Code = "NOT_JOINED"
	CodeEmptyContent        Code = "EMPTY_CONTENT"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeRoomInactive        Code = "ROOM_INACTIVE"
	CodeStoreUnavailable    Code = "STORE_UNAVAILABLE"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrAuthorizationDenied, CodeAuthorizationDenied},
	// Unknown rooms are reported as denied so room ids cannot be probed.
	{ErrRoomNotFound, CodeAuthorizationDenied},
	{ErrInvalidToken, CodeAuthorizationDenied},
	{ErrNotJoined, CodeNotJoined},
	{ErrEmptyContent, CodeEmptyContent},
	{ErrValidation, CodeValidation},
	{ErrRoomInactive, CodeRoomInactive},
	{ErrStoreUnavailable, CodeStoreUnavailable},
	{ErrRateLimited, CodeRateLimited},
}

// CodeOf maps any error to its client-facing code. Errors outside the taxonomy are INTERNAL.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// PublicMessage returns the text safe to send back to a client.
// Internal failures stay opaque, the detail only goes to the logs.
func PublicMessage(err error) string {
	switch CodeOf(err) {
	case CodeInternal:
		return "internal error"
	case CodeStoreUnavailable:
		return ErrStoreUnavailable.Error()
	default:
		return err.Error()
	}
}

// Retryable tells the client whether sending the same frame again may succeed.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeStoreUnavailable, CodeRateLimited:
		return true
	default:
		return false
	}
}

// Is is errors.Is, re-exported since this package shadows the standard one.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
