package wsframe

import (
	"encoding/binary"
	"unicode/utf8"
)

// # Description
//
// Append the header of a server to client frame to dst: fin bit always set, mask bit always
// unset and the length encoded on 7 bits, 7+16 bits or 7+64 bits depending on its value.
//
// # Returns
//
// The extended slice.
func AppendHeader(dst []byte, op Opcode, length uint64) []byte {
	return Header{
		Fin:           true,
		Opcode:        op,
		PayloadLength: length,
	}.AppendTo(dst)
}

// # Description
//
// Return the header of a server to client frame. See AppendHeader.
func EncodeHeader(op Opcode, length uint64) []byte {
	return AppendHeader(make([]byte, 0, MaxHeaderSize), op, length)
}

// # Description
//
// Return a complete server to client frame: header followed by payload.
func EncodeFrame(op Opcode, payload []byte) []byte {
	frame := AppendHeader(make([]byte, 0, MaxHeaderSize+len(payload)), op, uint64(len(payload)))
	return append(frame, payload...)
}

/*************************************************************************************************/
/* CLOSE PAYLOAD                                                                                 */
/*************************************************************************************************/

// # Description
//
// Build a close frame payload: 2 bytes big endian status code followed by the reason. The reason
// is truncated so the payload fits in a control frame, without splitting a UTF-8 sequence.
func NewClosePayload(code StatusCode, reason string) []byte {
	limit := MaxControlPayload - 2
	if len(reason) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	payload := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), uint16(code))
	return append(payload, reason...)
}

// # Description
//
// Decode a close frame payload.
//
// # Returns
//
//   - An empty payload yields NoStatusReceived, an empty reason and no error.
//   - A single byte payload yields ErrIncompleteCloseCode.
//   - Otherwise the big endian status code and the reason are returned. The code is not
//     validated: use StatusCode.IsValid.
func ParseClosePayload(payload []byte) (StatusCode, string, error) {
	switch len(payload) {
	case 0:
		return NoStatusReceived, "", nil
	case 1:
		return 0, "", ErrIncompleteCloseCode
	default:
		return StatusCode(binary.BigEndian.Uint16(payload[:2])), string(payload[2:]), nil
	}
}
