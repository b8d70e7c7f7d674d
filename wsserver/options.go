package wsserver

import (
	"time"

	"github.com/gbdevw/gowsserver/wssession"
	"github.com/go-playground/validator/v10"
)

// Defines configuration options for the websocket server.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type ServerOptions struct {
	// Listen address (host:port). Use port 0 to pick a free port.
	//
	// Defaults to localhost:8080.
	Addr string `validate:"required"`
	// Path to the PEM encoded certificate used to terminate TLS. TLS is disabled if empty.
	//
	// Defaults to empty.
	TLSCertFile string `validate:"required_with=TLSKeyFile"`
	// Path to the PEM encoded private key used to terminate TLS.
	//
	// Defaults to empty. Required when TLSCertFile is set.
	TLSKeyFile string `validate:"required_with=TLSCertFile"`
	// Number of idle ticks after which a session with no frame received nor sent is closed. 0
	// disables the idle sweep.
	//
	// Defaults to 60. Must be greater or equal to 0.
	IdleTimeoutTicks int64 `validate:"gte=0"`
	// Interval between two idle ticks.
	//
	// Defaults to 1 second. Must be greater than 0.
	IdleTickInterval time.Duration `validate:"gt=0"`
	// Size of the buffer used for each transport read (bytes).
	//
	// Defaults to 4096. Must be at least 512.
	ReadBufferSize int `validate:"gte=512"`
	// Maximum time granted to a transport to flush pending writes when it closes.
	//
	// Defaults to 5 seconds. Must be greater than 0.
	WriteTimeout time.Duration `validate:"gt=0"`
	// If true, SO_REUSEPORT is set on the listening socket when the platform supports it.
	//
	// Defaults to false.
	ReusePort bool
	// Options used for each session.
	//
	// Defaults to wssession.NewSessionOptions(). Must not be nil.
	Session *wssession.SessionOptions `validate:"required"`
}

// # Description
//
// Set opts.Addr and return the modified object. Method does not validate inputs.
func (opts *ServerOptions) WithAddr(value string) *ServerOptions {
	opts.Addr = value
	return opts
}

// # Description
//
// Set opts.TLSCertFile and opts.TLSKeyFile and return the modified object. Method does not
// validate inputs.
func (opts *ServerOptions) WithTLS(certFile string, keyFile string) *ServerOptions {
	opts.TLSCertFile = certFile
	opts.TLSKeyFile = keyFile
	return opts
}

// # Description
//
// Set opts.IdleTimeoutTicks and return the modified object. Method does not validate inputs.
func (opts *ServerOptions) WithIdleTimeoutTicks(value int64) *ServerOptions {
	opts.IdleTimeoutTicks = value
	return opts
}

// # Description
//
// Set opts.IdleTickInterval and return the modified object. Method does not validate inputs.
func (opts *ServerOptions) WithIdleTickInterval(value time.Duration) *ServerOptions {
	opts.IdleTickInterval = value
	return opts
}

// # Description
//
// Set opts.ReadBufferSize and return the modified object. Method does not validate inputs.
func (opts *ServerOptions) WithReadBufferSize(value int) *ServerOptions {
	opts.ReadBufferSize = value
	return opts
}

// # Description
//
// Set opts.WriteTimeout and return the modified object. Method does not validate inputs.
func (opts *ServerOptions) WithWriteTimeout(value time.Duration) *ServerOptions {
	opts.WriteTimeout = value
	return opts
}

// # Description
//
// Set opts.ReusePort and return the modified object.
func (opts *ServerOptions) WithReusePort(value bool) *ServerOptions {
	opts.ReusePort = value
	return opts
}

// # Description
//
// Set opts.Session and return the modified object. Method does not validate inputs.
func (opts *ServerOptions) WithSessionOptions(value *wssession.SessionOptions) *ServerOptions {
	opts.Session = value
	return opts
}

// # Description
//
// Factory which creates a new ServerOptions object with nice defaults.
//
// # Default settings
//
//   - Addr = localhost:8080
//   - TLS disabled
//   - IdleTimeoutTicks = 60
//   - IdleTickInterval = 1 second
//   - ReadBufferSize = 4096 bytes
//   - WriteTimeout = 5 seconds
//   - ReusePort = false
//   - Session = wssession.NewSessionOptions()
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Addr:             "localhost:8080",
		IdleTimeoutTicks: 60,
		IdleTickInterval: time.Second,
		ReadBufferSize:   4096,
		WriteTimeout:     5 * time.Second,
		ReusePort:        false,
		Session:          wssession.NewSessionOptions(),
	}
}

// # Description
//
// Helper function which validates ServerOptions, session options included.
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
func Validate(opts *ServerOptions) error {
	if err := validator.New().Struct(opts); err != nil {
		return err
	}
	return wssession.Validate(opts.Session)
}
