// The package implements a websocket server on top of wssession: it accepts TCP connections
// (optionally TLS terminated), runs one session per connection, keeps a registry of live sessions
// and closes idle sessions.
package wsserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gbdevw/gowsserver/wsframe"
	"github.com/gbdevw/gowsserver/wssession"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reasons sent in close frames initiated by the server.
const (
	reasonShutdown    = "server shutdown"
	reasonIdleTimeout = "idle timeout"
)

// Pause after a failed Accept before accepting again
const acceptRetryDelay = 50 * time.Millisecond

// Websocket server. The server owns the sessions it creates: it implements wssession.Owner and
// wssession.Observer.
type Server struct {
	// Server options
	opts ServerOptions
	// Application callbacks shared by all sessions
	handler wssession.Handler
	// Logger
	logger *zap.Logger
	// Tracer provider passed to sessions
	tracerProvider trace.TracerProvider
	// Tracer used to instrument server code
	tracer trace.Tracer
	// Reference to instruments used to record server metrics
	instruments *serverInstruments
	// Live sessions
	sessions *registry
	// Listener, set when the server starts
	listener net.Listener
	// Indicates that server has started
	started atomic.Bool
	// Unix timestamp (seconds) when the server has started
	startUnixTimestamp atomic.Int64
	// Total number of accepted connections since server has started
	connectionsCount atomic.Int64
	// Context bound to websocket server lifetime
	serverCtx context.Context
	// Cancel function used to stop server
	cancelServerCtx context.CancelFunc
	// Internal mutex used to coordinate start/stop
	startMu sync.Mutex
	// Tracks the accept loop and the idle sweep goroutines
	wg sync.WaitGroup
}

// # Description
//
// Factory which creates a new, non-started Server.
//
// # Inputs
//
//   - opts: Server options. If nil, default options are used.
//   - handler: Application callbacks called by every session. Must not be nil.
//   - logger: Logger used by the server and its sessions. If nil, a no-op logger is used.
//   - tracerProvider: Tracer provider to use. If nil, the global tracer provider is used.
//   - meterProvider: Meter provider to use. If nil, the global meter provider is used.
//
// # Returns
//
// A new, non-started Server or an error if inputs are invalid.
func NewServer(
	opts *ServerOptions,
	handler wssession.Handler,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if opts == nil {
		opts = NewServerOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, fmt.Errorf("invalid server options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	srvCtx, srvCancel := context.WithCancel(context.Background())
	srv := &Server{
		opts:            *opts,
		handler:         handler,
		logger:          logger,
		tracerProvider:  tracerProvider,
		tracer:          tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		sessions:        newRegistry(),
		serverCtx:       srvCtx,
		cancelServerCtx: srvCancel,
	}
	instruments, err := newServerInstruments(
		meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion)), srv)
	if err != nil {
		srvCancel()
		return nil, err
	}
	srv.instruments = instruments
	return srv, nil
}

/*************************************************************************************************/
/* START & STOP                                                                                  */
/*************************************************************************************************/

// # Description
//
// Open the listener and start accepting connections. The method returns once the listener is
// open.
//
// # Returns
//
// A ServerStartError if the server is already started, has been stopped, or if the listener
// cannot be opened.
func (srv *Server) Start(ctx context.Context) error {
	ctx, span := srv.tracer.Start(ctx, spanStart,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(attrAddr, srv.opts.Addr),
			attribute.Bool(attrTLS, srv.opts.TLSCertFile != ""),
		))
	defer span.End()
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.serverCtx.Err() != nil {
		return handleError(ServerStartError{Err: ErrServerStopped}, span, codes.Error, codes.Error.String())
	}
	if srv.started.Load() {
		return handleError(ServerStartError{Err: ErrAlreadyStarted}, span, codes.Error, codes.Error.String())
	}
	listener, err := listen(ctx, srv.opts.Addr, srv.opts.ReusePort)
	if err != nil {
		return handleError(ServerStartError{Err: err}, span, codes.Error, codes.Error.String())
	}
	if srv.opts.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(srv.opts.TLSCertFile, srv.opts.TLSKeyFile)
		if err != nil {
			listener.Close()
			return handleError(ServerStartError{Err: err}, span, codes.Error, codes.Error.String())
		}
		listener = tls.NewListener(listener, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}
	srv.listener = listener
	srv.started.Store(true)
	srv.startUnixTimestamp.Store(time.Now().Unix())
	srv.wg.Add(1)
	go srv.acceptLoop()
	if srv.opts.IdleTimeoutTicks > 0 {
		srv.wg.Add(1)
		go srv.idleSweepLoop()
	}
	srv.logger.Info("websocket server started",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", srv.opts.TLSCertFile != ""))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// # Description
//
// Stop accepting connections and close every live session with a 1001 close frame. The server
// cannot be started again.
//
// # Returns
//
// ErrNotStarted if the server is not started or the error returned when the listener is closed.
func (srv *Server) Stop(ctx context.Context) error {
	ctx, span := srv.tracer.Start(ctx, spanStop, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started.Load() {
		return handleError(ErrNotStarted, span, codes.Error, codes.Error.String())
	}
	srv.started.Store(false)
	srv.cancelServerCtx()
	err := srv.listener.Close()
	// No session can be added once the accept loop has exited
	srv.wg.Wait()
	sessions := srv.sessions.snapshot()
	for _, session := range sessions {
		session.CloseWithStatus(ctx, wsframe.GoingAway, reasonShutdown)
	}
	span.SetAttributes(attribute.Int(attrClosedCount, len(sessions)))
	srv.logger.Info("websocket server stopped", zap.Int("closed_sessions", len(sessions)))
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return handleError(err, span, codes.Error, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// Accept connections until the listener is closed.
func (srv *Server) acceptLoop() {
	defer srv.wg.Done()
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			if srv.serverCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			srv.logger.Warn("failed to accept connection", zap.Error(err))
			time.Sleep(acceptRetryDelay)
			continue
		}
		srv.handleConn(conn)
	}
}

// Create, register and start a session for a new connection.
func (srv *Server) handleConn(conn net.Conn) {
	_, span := srv.tracer.Start(srv.serverCtx, spanAccept,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(attrRemote, conn.RemoteAddr().String())))
	defer span.End()
	srv.connectionsCount.Add(1)
	transport := newTCPTransport(conn, srv.opts.ReadBufferSize, srv.opts.WriteTimeout, srv.recordBytesSent, srv.logger)
	session, err := wssession.NewSession(transport, srv.handler, srv, srv.opts.Session, srv.logger, srv.tracerProvider)
	if err != nil {
		srv.logger.Error("failed to create session", zap.Error(err))
		handleError(err, span, codes.Error, codes.Error.String())
		transport.Close()
		return
	}
	transport.onRead = session.OnRead
	srv.sessions.add(session)
	span.SetAttributes(attribute.String(attrSessionId, session.ID()))
	srv.logger.Debug("connection accepted", zap.String("session_id", session.ID()), zap.String("remote", transport.RemoteEndpoint()))
	session.Start()
	span.SetStatus(codes.Ok, codes.Ok.String())
}

/*************************************************************************************************/
/* IDLE SWEEP                                                                                    */
/*************************************************************************************************/

// Tick every session at each interval until the server stops.
func (srv *Server) idleSweepLoop() {
	defer srv.wg.Done()
	ticker := time.NewTicker(srv.opts.IdleTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-srv.serverCtx.Done():
			return
		case <-ticker.C:
			srv.sweepIdleSessions()
		}
	}
}

// # Description
//
// Increment the idle counter of every session and close the sessions whose counter exceeds
// IdleTimeoutTicks. Receiving or sending a frame resets the counter.
//
// # Returns
//
// The number of closed sessions.
func (srv *Server) sweepIdleSessions() int {
	ctx, span := srv.tracer.Start(srv.serverCtx, spanIdleSweep, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	closed := 0
	for _, session := range srv.sessions.snapshot() {
		if session.Tick() <= srv.opts.IdleTimeoutTicks {
			continue
		}
		srv.logger.Info("closing idle session", zap.String("session_id", session.ID()))
		session.CloseWithStatus(ctx, wsframe.GoingAway, reasonIdleTimeout)
		span.AddEvent(eventSessionClosed, trace.WithAttributes(attribute.String(attrSessionId, session.ID())))
		closed++
	}
	span.SetAttributes(attribute.Int(attrClosedCount, closed))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return closed
}

/*************************************************************************************************/
/* SESSION OWNER & OBSERVER                                                                      */
/*************************************************************************************************/

// # Description
//
// Remove the session with the provided ID from the registry and close it. Lookup and removal are
// atomic: concurrent calls for the same session close it once.
//
// # Returns
//
// False if no live session has the provided ID.
func (srv *Server) CloseSession(ctx context.Context, id string) bool {
	session, ok := srv.sessions.loadAndDelete(id)
	if !ok {
		return false
	}
	session.Close(ctx)
	return true
}

// Forget a closed session.
func (srv *Server) ReleaseSession(id string) {
	srv.sessions.remove(id)
}

// Record a rejected upgrade request.
func (srv *Server) OnHandshakeFailure(ctx context.Context, session *wssession.Session, err error) {
	srv.instruments.handshakeFailures.Add(ctx, 1)
}

// Record a session dropped after a framing error.
func (srv *Server) OnProtocolError(ctx context.Context, session *wssession.Session, err error) {
	srv.instruments.protocolErrors.Add(ctx, 1)
}

// Accounting hook called by transports after each write.
func (srv *Server) recordBytesSent(n int) {
	srv.instruments.bytesSent.Add(context.Background(), int64(n))
}

/*************************************************************************************************/
/* ACCESSORS                                                                                     */
/*************************************************************************************************/

// Returns the listener address or an empty string if the server has not started.
func (srv *Server) Addr() string {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Returns true if the server is started.
func (srv *Server) IsStarted() bool {
	return srv.started.Load()
}

// Returns the number of live sessions.
func (srv *Server) SessionCount() int {
	return srv.sessions.count()
}

// Returns the live session with the provided ID if any.
func (srv *Server) Session(id string) (*wssession.Session, bool) {
	return srv.sessions.get(id)
}

// Returns a snapshot of the live sessions.
func (srv *Server) Sessions() []*wssession.Session {
	return srv.sessions.snapshot()
}
