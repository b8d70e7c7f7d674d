// The package implements the RFC6455 base framing used by the websocket server: frame header
// packing/unpacking, a streaming frame decoder and the server side frame encoder.
package wsframe

import "fmt"

/*************************************************************************************************/
/* OPCODES                                                                                       */
/*************************************************************************************************/

// Frame opcodes as defined by RFC6455.
//
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2
type Opcode uint8

const (
	// Denotes a continuation frame
	OpContinuation Opcode = 0x0
	// Denotes a text frame
	OpText Opcode = 0x1
	// Denotes a binary frame
	OpBinary Opcode = 0x2
	// Denotes a connection close frame
	OpClose Opcode = 0x8
	// Denotes a ping frame
	OpPing Opcode = 0x9
	// Denotes a pong frame
	OpPong Opcode = 0xA
)

// Returns true if the opcode is one of the data or control opcodes defined by RFC6455. Opcodes
// 0x3-0x7 and 0xB-0xF are reserved and therefore invalid.
func (op Opcode) IsValid() bool {
	switch op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	default:
		return false
	}
}

// Returns true if the opcode denotes a control frame (close, ping, pong).
func (op Opcode) IsControl() bool {
	return op&0x8 != 0
}

// Returns true if the opcode denotes a data frame (continuation, text, binary).
func (op Opcode) IsData() bool {
	return op == OpContinuation || op == OpText || op == OpBinary
}

func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("reserved(0x%x)", uint8(op))
	}
}

/*************************************************************************************************/
/* CLOSE STATUS CODES                                                                            */
/*************************************************************************************************/

// Constants for RFC6455 defined close status codes
//
// RFC: https://www.rfc-editor.org/rfc/rfc6455.html#section-7.4.1
//
// Code names are inspired by: https://www.iana.org/assignments/websocket/websocket.xhtml
type StatusCode uint16

const (
	// 1000 indicates a normal closure, meaning that the purpose for
	// which the connection was established has been fulfilled.
	NormalClosure StatusCode = 1000
	// 1001 indicates that an endpoint is "going away", such as a server
	// going down or a browser having navigated away from a page.
	GoingAway StatusCode = 1001
	// 1002 indicates that an endpoint is terminating the connection due
	// to a protocol error.
	ProtocolError StatusCode = 1002
	// 1003 indicates that an endpoint is terminating the connection
	// because it has received a type of data it cannot accept.
	UnsupportedData StatusCode = 1003
	// 1004 is reserved and must not be used.
	Reserved StatusCode = 1004
	// 1005 is a reserved value and MUST NOT be set as a status code in a
	// Close control frame by an endpoint.
	NoStatusReceived StatusCode = 1005
	// 1006 is a reserved value and MUST NOT be set as a status code in a
	// Close control frame by an endpoint. It is designated for use in
	// applications expecting a status code to indicate that the
	// connection was closed abnormally.
	AbnormalClosure StatusCode = 1006
	// 1007 indicates that an endpoint is terminating the connection
	// because it has received data within a message that was not
	// consistent with the type of the message.
	InvalidFramePayloadData StatusCode = 1007
	// 1008 indicates that an endpoint is terminating the connection
	// because it has received a message that violates its policy.
	PolicyViolation StatusCode = 1008
	// 1009 indicates that an endpoint is terminating the connection
	// because it has received a message that is too big for it to
	// process.
	MessageTooBig StatusCode = 1009
	// 1010 indicates that a client is terminating the connection because
	// the server did not negotiate an expected extension.
	MandatoryExtension StatusCode = 1010
	// 1011 indicates that a server is terminating the connection because
	// it encountered an unexpected condition that prevented it from
	// fulfilling the request.
	InternalError StatusCode = 1011
	// 1015 is a reserved value and MUST NOT be set as a status code in a
	// Close control frame by an endpoint. It is designated for use in
	// applications expecting a status code to indicate that the
	// connection was closed due to a failure to perform a TLS handshake.
	TLSHandshake StatusCode = 1015
)

// Returns true if the status code can legitimately be received in a close frame. Codes below
// 1000, from 5000 and the reserved codes 1004, 1005, 1006 and 1015 are invalid.
func (code StatusCode) IsValid() bool {
	if code < 1000 || code >= 5000 {
		return false
	}
	switch code {
	case Reserved, NoStatusReceived, AbnormalClosure, TLSHandshake:
		return false
	default:
		return true
	}
}

/*************************************************************************************************/
/* SIZES                                                                                         */
/*************************************************************************************************/

const (
	// Maximum payload length of a control frame.
	MaxControlPayload = 125
	// Maximum size of a frame header: 2 bytes base header, 8 bytes extended length, 4 bytes key.
	MaxHeaderSize = 14
	// Largest payload length which fits in the 7 bits length field.
	maxShortLength = 125
	// Length field value announcing a 16 bits extended length.
	lengthField16 = 126
	// Length field value announcing a 64 bits extended length.
	lengthField64 = 127
)
