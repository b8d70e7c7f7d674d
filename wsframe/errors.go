package wsframe

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped in FramingError. Use errors.Is to test which rule has been violated.
var (
	// One of the RSV1, RSV2 or RSV3 bits is set while no extension has been negotiated.
	ErrReservedBits = errors.New("reserved bits must be zero")
	// The opcode is one of the reserved opcodes.
	ErrInvalidOpcode = errors.New("invalid opcode")
	// A control frame is fragmented or its payload exceeds 125 bytes.
	ErrInvalidControlFrame = errors.New("invalid control frame")
	// A client frame has been received without a masking key.
	ErrUnmaskedFrame = errors.New("client frame is not masked")
	// The declared payload length exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("frame payload exceeds maximum allowed size")
	// Parse has been called while a completed frame has not been reset yet.
	ErrFrameNotConsumed = errors.New("completed frame has not been consumed")
	// A close payload holds a single byte.
	ErrIncompleteCloseCode = errors.New("incomplete close code")
)

/*************************************************************************************************/
/* FRAMING ERROR                                                                                 */
/*************************************************************************************************/

// Error returned when the frame stream cannot be trusted anymore. Framing errors are
// connection-fatal: the frame being parsed is discarded and the decoder must not be fed again.
type FramingError struct {
	// Embedded error
	Err error
}

func (err FramingError) Error() string {
	return fmt.Sprintf("websocket framing error: %v", err.Err)
}

func (err FramingError) Unwrap() error {
	return err.Err
}
