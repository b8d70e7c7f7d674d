package wssession

import (
	"github.com/gbdevw/gowsserver/wsframe"
)

// Buffer which collects the frame payloads of the one incoming message in progress.
//
// Payloads are kept as separate chunks: when the message completes, each chunk is delivered to
// the application by its own callback call.
type reassembler struct {
	// Opcode of the message in progress (text or binary)
	opcode wsframe.Opcode
	// Payload of each frame received for the message in progress
	chunks [][]byte
	// Indicates a message is in progress
	inProgress bool
	// Number of payload bytes buffered for the message in progress
	size int64
	// Maximum size of a message (bytes). 0 disables the limit.
	limit int64
}

// # Description
//
// Add a data frame to the message in progress.
//
// # Returns
//
//   - The chunks and the opcode of the message if the frame completes it. The buffer is cleared.
//   - complete = false if the frame is not final.
//   - ErrMessageInProgress if a text/binary frame interrupts a fragmented message.
//   - ErrUnexpectedContinuation if a continuation frame is received outside of a message.
//   - ErrMessageTooLarge if the message grows beyond the limit.
func (r *reassembler) push(frame wsframe.Frame) (opcode wsframe.Opcode, chunks [][]byte, complete bool, err error) {
	switch frame.Header.Opcode {
	case wsframe.OpContinuation:
		if !r.inProgress {
			return 0, nil, false, ErrUnexpectedContinuation
		}
	case wsframe.OpText, wsframe.OpBinary:
		if r.inProgress {
			return 0, nil, false, ErrMessageInProgress
		}
		r.opcode = frame.Header.Opcode
		r.inProgress = true
	}
	if r.limit > 0 && r.buffered()+int64(len(frame.Payload)) > r.limit {
		r.reset()
		return 0, nil, false, ErrMessageTooLarge
	}
	r.chunks = append(r.chunks, frame.Payload)
	r.size += int64(len(frame.Payload))
	if !frame.Header.Fin {
		return r.opcode, nil, false, nil
	}
	opcode, chunks = r.opcode, r.chunks
	r.reset()
	return opcode, chunks, true, nil
}

// Drop the message in progress if any.
func (r *reassembler) reset() {
	r.opcode = 0
	r.chunks = nil
	r.inProgress = false
	r.size = 0
}

// Returns the number of payload bytes buffered for the message in progress.
func (r *reassembler) buffered() int64 {
	return r.size
}
