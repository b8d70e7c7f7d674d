package wssession

import (
	"github.com/go-playground/validator/v10"
)

// Defines configuration options for websocket sessions.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type SessionOptions struct {
	// Maximum number of bytes buffered while waiting for the end of the upgrade request. A request
	// which grows beyond this limit is rejected as malformed.
	//
	// Defaults to 8192. Must be at least 64.
	MaxHandshakeSize int `validate:"gte=64"`
	// Maximum declared payload length of a single frame (bytes). 0 disables the limit.
	//
	// Defaults to 16 MiB. Must be greater or equal to 0.
	MaxPayloadSize int64 `validate:"gte=0"`
	// Maximum total payload length of a message, fragments included (bytes). 0 disables the limit.
	//
	// Defaults to 16 MiB. Must be greater or equal to 0.
	MaxMessageSize int64 `validate:"gte=0"`
	// If true, frames received without masking key are rejected as RFC6455 mandates.
	//
	// Defaults to true.
	RequireMaskedFrames bool
	// If true, fragmented control frames and control frames with a payload larger than 125 bytes
	// are rejected.
	//
	// Defaults to true.
	StrictControlFrames bool
}

// # Description
//
// Set opts.MaxHandshakeSize and return the modified object. Method does not validate inputs.
func (opts *SessionOptions) WithMaxHandshakeSize(value int) *SessionOptions {
	opts.MaxHandshakeSize = value
	return opts
}

// # Description
//
// Set opts.MaxPayloadSize and return the modified object. Method does not validate inputs.
func (opts *SessionOptions) WithMaxPayloadSize(value int64) *SessionOptions {
	opts.MaxPayloadSize = value
	return opts
}

// # Description
//
// Set opts.MaxMessageSize and return the modified object. Method does not validate inputs.
func (opts *SessionOptions) WithMaxMessageSize(value int64) *SessionOptions {
	opts.MaxMessageSize = value
	return opts
}

// # Description
//
// Set opts.RequireMaskedFrames and return the modified object.
func (opts *SessionOptions) WithRequireMaskedFrames(value bool) *SessionOptions {
	opts.RequireMaskedFrames = value
	return opts
}

// # Description
//
// Set opts.StrictControlFrames and return the modified object.
func (opts *SessionOptions) WithStrictControlFrames(value bool) *SessionOptions {
	opts.StrictControlFrames = value
	return opts
}

// # Description
//
// Factory which creates a new SessionOptions object with nice defaults.
//
// # Default settings
//
//   - MaxHandshakeSize = 8192 bytes.
//   - MaxPayloadSize = 16 MiB.
//   - MaxMessageSize = 16 MiB.
//   - RequireMaskedFrames = true.
//   - StrictControlFrames = true.
func NewSessionOptions() *SessionOptions {
	return &SessionOptions{
		MaxHandshakeSize:    8192,
		MaxPayloadSize:      16 << 20,
		MaxMessageSize:      16 << 20,
		RequireMaskedFrames: true,
		StrictControlFrames: true,
	}
}

// # Description
//
// Helper function which validates SessionOptions.
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
func Validate(opts *SessionOptions) error {
	return validator.New().Struct(opts)
}
