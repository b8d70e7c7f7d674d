package wsserver

import (
	"errors"
	"fmt"
)

var (
	// Returned by Start when the server is already started.
	ErrAlreadyStarted = errors.New("server already started")
	// Returned by Start when the server has been stopped: a new server must be created.
	ErrServerStopped = errors.New("server has been stopped")
	// Returned by Stop when the server is not started.
	ErrNotStarted = errors.New("server not started")
)

/*************************************************************************************************/
/* SERVER START ERROR                                                                            */
/*************************************************************************************************/

// Specific error type for errors which occurs when the server starts.
type ServerStartError struct {
	// Embedded error
	Err error
}

func (err ServerStartError) Error() string {
	return fmt.Sprintf("websocket server failed to start: %v", err.Err)
}

func (err ServerStartError) Unwrap() error {
	return err.Err
}
