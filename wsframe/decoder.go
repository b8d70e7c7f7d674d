package wsframe

import (
	"bytes"
	"encoding/binary"
)

// Internal state of the streaming decoder.
type decoderState int

const (
	// Waiting for the 2 bytes base header
	readingBaseHeader decoderState = iota
	// Waiting for the 2 or 8 bytes extended payload length
	readingExtendedLength
	// Waiting for the 4 bytes masking key
	readingMaskingKey
	// Waiting for payload bytes
	readingPayload
	// A complete frame is available and must be reset before parsing goes on
	frameReady
	// A framing error has occured: the decoder cannot be used anymore
	failed
)

// A decoded frame: header and unmasked payload.
type Frame struct {
	// Frame header
	Header Header
	// Unmasked frame payload
	Payload []byte
}

// Options used to configure a Decoder.
type DecoderOptions struct {
	// Maximum accepted payload length. 0 disables the limit.
	MaxPayloadSize uint64
	// If true, unmasked frames are rejected with a framing error.
	RequireMask bool
	// If true, fragmented control frames and control frames with a payload larger than 125 bytes
	// are rejected with a framing error.
	StrictControlFrames bool
}

// Streaming frame decoder.
//
// The decoder is fed with chunks of arbitrary size through Parse. It keeps track of its progress
// across calls so bytes already consumed are never parsed again. Once PayloadIsReady reports
// true, the frame can be fetched with Frame and the decoder must be Reset before Parse is called
// again. Reset keeps bytes received after the completed frame: they drive the next frame, so the
// caller must loop on Parse(nil) while Buffered reports remaining bytes.
//
// A decoder is not safe for concurrent use.
type Decoder struct {
	// Decoder options
	opts DecoderOptions
	// Current state
	state decoderState
	// Error which made the decoder fail
	err error
	// Received bytes not consumed yet
	pending []byte
	// Scratch space used to collect fixed size header parts spread across several feeds
	scratch [8]byte
	// Number of bytes collected in scratch
	scratchLen int
	// Header of the frame being decoded
	header Header
	// Raw 7 bits length field of the frame being decoded
	lengthField byte
	// Unmasked payload chunks of the frame being decoded
	chunks [][]byte
	// Number of payload bytes received so far
	received uint64
}

// # Description
//
// Factory - Return a new decoder waiting for a frame header.
//
// The zero value of DecoderOptions accepts any well formed frame.
func NewDecoder(opts DecoderOptions) *Decoder {
	return &Decoder{
		opts:  opts,
		state: readingBaseHeader,
	}
}

// # Description
//
// Feed the decoder with data and parse as much as possible. data can be nil to resume parsing
// bytes which remain buffered after a frame has been reset. data is copied: the caller can reuse
// the slice once Parse returns.
//
// Parse stops as soon as one frame is complete, even if more bytes are buffered.
//
// # Returns
//
// nil if the data has been consumed without error, whether a frame is complete or not. A
// FramingError if the stream violates the framing rules: the frame is discarded and the decoder
// must not be used anymore.
func (d *Decoder) Parse(data []byte) error {
	if d.state == failed {
		return d.err
	}
	if d.state == frameReady {
		if len(data) > 0 {
			return d.fail(ErrFrameNotConsumed)
		}
		return nil
	}
	if len(data) > 0 {
		d.pending = append(d.pending, data...)
	}
	for d.state != frameReady && len(d.pending) > 0 {
		switch d.state {
		case readingBaseHeader:
			if !d.fill(2) {
				return nil
			}
			h, field := unpackBaseHeader(d.scratch[0], d.scratch[1])
			d.scratchLen = 0
			if err := d.validateBaseHeader(h, field); err != nil {
				return d.fail(err)
			}
			d.header = h
			d.lengthField = field
			if extendedLengthSize(field) > 0 {
				d.state = readingExtendedLength
			} else if err := d.afterLength(); err != nil {
				return d.fail(err)
			}
		case readingExtendedLength:
			size := extendedLengthSize(d.lengthField)
			if !d.fill(size) {
				return nil
			}
			if size == 2 {
				d.header.PayloadLength = uint64(binary.BigEndian.Uint16(d.scratch[:2]))
			} else {
				d.header.PayloadLength = binary.BigEndian.Uint64(d.scratch[:8])
			}
			d.scratchLen = 0
			if err := d.afterLength(); err != nil {
				return d.fail(err)
			}
		case readingMaskingKey:
			if !d.fill(4) {
				return nil
			}
			copy(d.header.MaskingKey[:], d.scratch[:4])
			d.scratchLen = 0
			d.enterPayload()
		case readingPayload:
			remaining := d.header.PayloadLength - d.received
			n := uint64(len(d.pending))
			if n > remaining {
				n = remaining
			}
			chunk := make([]byte, n)
			copy(chunk, d.pending[:n])
			if d.header.Masked {
				ApplyMask(d.header.MaskingKey, d.received, chunk)
			}
			d.chunks = append(d.chunks, chunk)
			d.received += n
			d.consume(int(n))
			if d.received == d.header.PayloadLength {
				d.state = frameReady
			}
		}
	}
	return nil
}

// Returns true once the full declared payload of the current frame has been received.
func (d *Decoder) PayloadIsReady() bool {
	return d.state == frameReady
}

// Returns the header of the frame being decoded. Fields are meaningful once the corresponding
// header part has been parsed.
func (d *Decoder) Header() Header {
	return d.header
}

// # Description
//
// Return the completed frame with its unmasked payload. The method returns false if no frame is
// complete.
func (d *Decoder) Frame() (Frame, bool) {
	if d.state != frameReady {
		return Frame{}, false
	}
	payload := []byte{}
	switch len(d.chunks) {
	case 0:
	case 1:
		payload = d.chunks[0]
	default:
		payload = bytes.Join(d.chunks, nil)
	}
	return Frame{Header: d.header, Payload: payload}, true
}

// Returns the number of received bytes which have not been consumed yet.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}

// # Description
//
// Clear per-frame state so the decoder waits for a new frame header. Buffered bytes are kept
// and will be parsed by the next Parse call. Reset has no effect on a failed decoder.
func (d *Decoder) Reset() {
	if d.state == failed {
		return
	}
	d.state = readingBaseHeader
	d.header = Header{}
	d.lengthField = 0
	d.chunks = nil
	d.received = 0
	d.scratchLen = 0
}

// Returns the error which made the decoder fail, if any.
func (d *Decoder) Err() error {
	return d.err
}

/*************************************************************************************************/
/* INTERNALS                                                                                     */
/*************************************************************************************************/

// Move pending bytes to scratch until it holds n bytes. Returns true when scratch is complete.
func (d *Decoder) fill(n int) bool {
	copied := copy(d.scratch[d.scratchLen:n], d.pending)
	d.scratchLen += copied
	d.consume(copied)
	return d.scratchLen == n
}

// Drop n bytes from the pending buffer.
func (d *Decoder) consume(n int) {
	d.pending = d.pending[n:]
	if len(d.pending) == 0 {
		d.pending = nil
	}
}

// Validate the base header against framing rules.
func (d *Decoder) validateBaseHeader(h Header, field byte) error {
	if h.Rsv1 || h.Rsv2 || h.Rsv3 {
		return ErrReservedBits
	}
	if !h.Opcode.IsValid() {
		return ErrInvalidOpcode
	}
	if d.opts.StrictControlFrames && h.Opcode.IsControl() && (!h.Fin || field > MaxControlPayload) {
		return ErrInvalidControlFrame
	}
	if d.opts.RequireMask && !h.Masked {
		return ErrUnmaskedFrame
	}
	return nil
}

// Check the payload length and move to the next state once the length is known.
func (d *Decoder) afterLength() error {
	// The most significant bit of a 64 bits length must be 0
	if d.header.PayloadLength&(1<<63) != 0 {
		return ErrPayloadTooLarge
	}
	if d.opts.MaxPayloadSize > 0 && d.header.PayloadLength > d.opts.MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if d.header.Masked {
		d.state = readingMaskingKey
		return nil
	}
	d.enterPayload()
	return nil
}

// Move to payload state or directly to ready state for empty payloads.
func (d *Decoder) enterPayload() {
	if d.header.PayloadLength == 0 {
		d.state = frameReady
		return
	}
	d.state = readingPayload
}

// Switch the decoder to failed state, discard the current frame and return a FramingError.
func (d *Decoder) fail(err error) error {
	d.state = failed
	d.chunks = nil
	d.err = FramingError{Err: err}
	return d.err
}
