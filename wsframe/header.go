package wsframe

import "encoding/binary"

// Frame header as defined by RFC6455.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-------+-+-------------+-------------------------------+
//	|F|R|R|R| opcode|M| Payload len |    Extended payload length    |
//	|I|S|S|S|  (4)  |A|     (7)     |             (16/64)           |
//	|N|V|V|V|       |S|             |   (if payload len==126/127)   |
//	| |1|2|3|       |K|             |                               |
//	+-+-+-+-+-------+-+-------------+ - - - - - - - - - - - - - - - +
//	|     Extended payload length continued, if payload len == 127  |
//	+ - - - - - - - - - - - - - - - +-------------------------------+
//	|                               |Masking-key, if MASK set to 1  |
//	+-------------------------------+-------------------------------+
type Header struct {
	// Marks the last frame of a message
	Fin bool
	// Reserved bits, must be zero as no extension is negotiated
	Rsv1 bool
	Rsv2 bool
	Rsv3 bool
	// Frame opcode
	Opcode Opcode
	// Indicates whether the payload is masked
	Masked bool
	// Payload length in bytes
	PayloadLength uint64
	// Masking key, meaningful only when Masked is true
	MaskingKey [4]byte
}

// Pack the first two header bytes. The returned length field is the 7 bits value: the actual
// length, 126 or 127 depending on which extended length encoding is required.
func packBaseHeader(h Header) (b0 byte, b1 byte) {
	if h.Fin {
		b0 |= 1 << 7
	}
	if h.Rsv1 {
		b0 |= 1 << 6
	}
	if h.Rsv2 {
		b0 |= 1 << 5
	}
	if h.Rsv3 {
		b0 |= 1 << 4
	}
	b0 |= byte(h.Opcode) & 0x0F
	if h.Masked {
		b1 |= 1 << 7
	}
	b1 |= lengthField(h.PayloadLength)
	return b0, b1
}

// Unpack the first two header bytes. The payload length of the returned header is set only when
// it fits in the 7 bits field. The raw 7 bits length field is returned alongside.
func unpackBaseHeader(b0 byte, b1 byte) (Header, byte) {
	h := Header{
		Fin:    b0&(1<<7) != 0,
		Rsv1:   b0&(1<<6) != 0,
		Rsv2:   b0&(1<<5) != 0,
		Rsv3:   b0&(1<<4) != 0,
		Opcode: Opcode(b0 & 0x0F),
		Masked: b1&(1<<7) != 0,
	}
	field := b1 & 0x7F
	if field <= maxShortLength {
		h.PayloadLength = uint64(field)
	}
	return h, field
}

// Returns the 7 bits length field value to use for the provided payload length.
func lengthField(length uint64) byte {
	switch {
	case length <= maxShortLength:
		return byte(length)
	case length <= 0xFFFF:
		return lengthField16
	default:
		return lengthField64
	}
}

// Returns the number of extended payload length bytes announced by a 7 bits length field.
func extendedLengthSize(field byte) int {
	switch field {
	case lengthField16:
		return 2
	case lengthField64:
		return 8
	default:
		return 0
	}
}

// # Description
//
// Return the number of bytes the header will take on the wire.
func (h Header) Size() int {
	size := 2 + extendedLengthSize(lengthField(h.PayloadLength))
	if h.Masked {
		size += 4
	}
	return size
}

// # Description
//
// Append the wire representation of the header to dst and return the extended slice.
func (h Header) AppendTo(dst []byte) []byte {
	b0, b1 := packBaseHeader(h)
	dst = append(dst, b0, b1)
	switch extendedLengthSize(b1 & 0x7F) {
	case 2:
		dst = binary.BigEndian.AppendUint16(dst, uint16(h.PayloadLength))
	case 8:
		dst = binary.BigEndian.AppendUint64(dst, h.PayloadLength)
	}
	if h.Masked {
		dst = append(dst, h.MaskingKey[:]...)
	}
	return dst
}

// # Description
//
// XOR data in place with the masking key. offset is the position of data[0] in the frame payload
// so a payload can be (un)masked chunk by chunk. Applying the function twice restores the data.
func ApplyMask(key [4]byte, offset uint64, data []byte) {
	for i := range data {
		data[i] ^= key[(offset+uint64(i))%4]
	}
}
