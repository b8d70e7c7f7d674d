package wssession

import "errors"

var (
	// Returned by send methods when the session is not open.
	ErrSessionNotOpen = errors.New("websocket session is not open")
	// A continuation frame has been received while no message is in progress.
	ErrUnexpectedContinuation = errors.New("continuation frame without message in progress")
	// A text or binary frame has been received while a fragmented message is in progress.
	ErrMessageInProgress = errors.New("new data frame while a fragmented message is in progress")
	// The payloads of a fragmented message exceed the maximum message size.
	ErrMessageTooLarge = errors.New("message exceeds the maximum message size")
)
