package wssession

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gbdevw/gowsserver/wsframe"
	"github.com/gbdevw/gowsserver/wshandshake"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reasons sent in the 1002 close frame which answers an invalid close frame.
const (
	reasonIncompleteCloseCode = "Incomplete close code"
	reasonInvalidCloseCode    = "Invalid close code"
)

// A server side websocket session bound to one transport.
//
// The transport drives the session by delivering read completions to OnRead. Send methods, the
// close methods and the accessors are safe for concurrent use.
type Session struct {
	// Session unique ID
	id string
	// Underlying byte stream
	transport Transport
	// Application callbacks (instrumented)
	handler Handler
	// Owner of the session, can be nil
	owner Owner
	// Optional owner hook notified of protocol failures
	observer Observer
	// Session options
	opts SessionOptions
	// Logger with session fields
	logger *zap.Logger
	// Tracer used to instrument code
	tracer trace.Tracer
	// Session context, cancelled when the session closes
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex which protects state, closeInitiated, request, acceptKey and uri
	mu sync.Mutex
	// Session state
	state State
	// Set once a close frame has been sent or received
	closeInitiated bool
	// Parsed upgrade request, set when the session opens
	request *wshandshake.Request
	// Sec-WebSocket-Accept value sent to the client
	acceptKey string
	// Application defined URI
	uri string

	// Serializes writes so header and payload of a frame are enqueued back to back and the 101
	// response precedes any frame
	writeMu sync.Mutex

	// Bytes received before the upgrade completes. Discarded once the session is open.
	handshakeBuf []byte
	// Frame decoder
	decoder *wsframe.Decoder
	// Incoming message in progress
	messages reassembler

	// Number of ticks since the last frame was received or sent
	idleTicks atomic.Int64
	// Ensure teardown runs once
	teardown sync.Once
}

// # Description
//
// Factory - Build a new session which waits for the upgrade request on the provided transport.
// Call Start to arm the first read.
//
// # Inputs
//
//   - transport: Byte stream the session runs on. Must not be nil.
//   - handler: Application callbacks. Must not be nil.
//   - owner: Component which owns the session (server registry). Can be nil: the session closes
//     itself when the protocol mandates it.
//   - opts: Session options. If nil, default options are used.
//   - logger: Logger used by the session. If nil, a no-op logger is used.
//   - tracerProvider: Tracer provider used to get a tracer. If nil, global tracer provider is used.
//
// # Returns
//
// The new session or an error if inputs are invalid.
func NewSession(
	transport Transport,
	handler Handler,
	owner Owner,
	opts *SessionOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if opts == nil {
		opts = NewSessionOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	decorated, err := NewHandlerInstrumentationDecorator(handler, tracerProvider)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	var observer Observer
	if owner != nil {
		observer, _ = owner.(Observer)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id.String(),
		transport: transport,
		handler:   decorated,
		owner:     owner,
		observer:  observer,
		opts:      *opts,
		logger: logger.With(
			zap.String("session_id", id.String()),
			zap.String("remote", transport.RemoteEndpoint())),
		tracer: tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		ctx:    ctx,
		cancel: cancel,
		state:  AwaitingHandshake,
		decoder: wsframe.NewDecoder(wsframe.DecoderOptions{
			MaxPayloadSize:      uint64(opts.MaxPayloadSize),
			RequireMask:         opts.RequireMaskedFrames,
			StrictControlFrames: opts.StrictControlFrames,
		}),
		messages: reassembler{limit: opts.MaxMessageSize},
	}, nil
}

/*************************************************************************************************/
/* TRANSPORT EVENTS                                                                              */
/*************************************************************************************************/

// Arm the first transport read.
func (s *Session) Start() {
	s.logger.Debug("session started")
	s.transport.AsyncRead()
}

// # Description
//
// Read completion callback called by the transport. A non-nil err means the read failed or the
// connection has been closed by the peer: data is ignored and the session closes.
//
// The transport must not deliver another read completion before the session has armed a new read.
func (s *Session) OnRead(err error, data []byte) {
	ctx, span := s.tracer.Start(s.ctx, spanRead,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(attrSessionId, s.id),
			attribute.Int(attrLength, len(data)),
		))
	defer span.End()
	if err != nil {
		s.logger.Debug("transport read failed", zap.Error(err))
		handleError(err, span, codes.Error, "transport read failed")
		s.terminate(ctx)
		return
	}
	state := s.State()
	span.SetAttributes(attribute.String(attrState, state.String()))
	switch state {
	case AwaitingHandshake:
		s.handleHandshake(ctx, data)
	case Open, Closing:
		if err := s.handleFrames(ctx, data); err != nil {
			s.logger.Warn("dropping connection after framing error", zap.Error(err))
			handleError(err, span, codes.Error, "framing error")
			if s.observer != nil {
				s.observer.OnProtocolError(ctx, s, err)
			}
			s.terminate(ctx)
			return
		}
		if st := s.State(); st == Open || st == Closing {
			s.transport.AsyncRead()
		}
	default:
		// Closed: late completion
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
}

// Feed the handshake buffer and react to the parser outcome.
func (s *Session) handleHandshake(ctx context.Context, data []byte) {
	ctx, span := s.tracer.Start(ctx, spanHandshake, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	s.handshakeBuf = append(s.handshakeBuf, data...)
	outcome, req, err := wshandshake.Parse(s.handshakeBuf)
	if outcome == wshandshake.NeedMoreData && len(s.handshakeBuf) >= s.opts.MaxHandshakeSize {
		outcome, err = wshandshake.Malformed, wshandshake.MalformedHandshakeError{Err: wshandshake.ErrRequestHeaderTooLarge}
	}
	span.SetAttributes(attribute.String(attrOutcome, outcome.String()))
	switch outcome {
	case wshandshake.NeedMoreData:
		span.SetStatus(codes.Ok, codes.Ok.String())
		s.transport.AsyncRead()
	case wshandshake.Parsed:
		span.SetAttributes(attribute.String(attrPath, req.Path))
		resp, accept := wshandshake.SwitchingProtocolsResponse(req)
		leftover := s.handshakeBuf[req.Size:]
		s.handshakeBuf = nil
		// The 101 response is enqueued before any frame a concurrent sender may write
		s.writeMu.Lock()
		s.mu.Lock()
		if s.state != AwaitingHandshake {
			// Closed concurrently
			s.mu.Unlock()
			s.writeMu.Unlock()
			span.SetStatus(codes.Ok, codes.Ok.String())
			return
		}
		s.request = req
		s.acceptKey = accept
		s.state = Open
		s.mu.Unlock()
		s.transport.AsyncWrite(resp)
		s.writeMu.Unlock()
		span.AddEvent(eventHandshakeCompleted)
		span.SetStatus(codes.Ok, codes.Ok.String())
		s.logger.Info("websocket session open",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("protocol", req.Protocol))
		// Frames sent along with the upgrade request
		if len(leftover) > 0 {
			if err := s.handleFrames(ctx, leftover); err != nil {
				s.logger.Warn("dropping connection after framing error", zap.Error(err))
				if s.observer != nil {
					s.observer.OnProtocolError(ctx, s, err)
				}
				s.terminate(ctx)
				return
			}
		}
		if st := s.State(); st == Open || st == Closing {
			s.transport.AsyncRead()
		}
	default:
		s.handshakeBuf = nil
		handleError(err, span, codes.Error, "malformed handshake")
		s.logger.Warn("rejecting websocket upgrade request", zap.Error(err))
		if s.observer != nil {
			s.observer.OnHandshakeFailure(ctx, s, err)
		}
		s.transport.AsyncWrite(wshandshake.BadRequestResponse())
		s.terminate(ctx)
	}
}

// # Description
//
// Feed the decoder with data and dispatch every frame which completes, looping while buffered
// bytes remain.
//
// # Returns
//
// A FramingError if the stream cannot be trusted anymore.
func (s *Session) handleFrames(ctx context.Context, data []byte) error {
	if err := s.decoder.Parse(data); err != nil {
		return err
	}
	for s.decoder.PayloadIsReady() {
		frame, _ := s.decoder.Frame()
		s.decoder.Reset()
		if err := s.dispatch(ctx, frame); err != nil {
			return err
		}
		if s.State() == Closed {
			return nil
		}
		if s.decoder.Buffered() == 0 {
			break
		}
		if err := s.decoder.Parse(nil); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch a complete frame according to its opcode.
func (s *Session) dispatch(ctx context.Context, frame wsframe.Frame) error {
	ctx, span := s.tracer.Start(ctx, spanFrame,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrOpcode, frame.Header.Opcode.String()),
			attribute.Bool(attrFin, frame.Header.Fin),
			attribute.Int(attrLength, len(frame.Payload)),
		))
	defer span.End()
	s.idleTicks.Store(0)
	switch frame.Header.Opcode {
	case wsframe.OpPing:
		s.writeFrame(wsframe.OpPong, frame.Payload)
	case wsframe.OpPong:
		span.AddEvent(eventPongReceived)
		s.logger.Debug("pong received", zap.Int("length", len(frame.Payload)))
	case wsframe.OpClose:
		s.handleClose(ctx, frame.Payload)
	case wsframe.OpText, wsframe.OpBinary, wsframe.OpContinuation:
		opcode, chunks, complete, err := s.messages.push(frame)
		if err != nil {
			return handleError(wsframe.FramingError{Err: err}, span, codes.Error, "invalid fragmentation")
		}
		if complete {
			span.AddEvent(eventMessageDelivered, trace.WithAttributes(attribute.Int(attrChunks, len(chunks))))
			for _, chunk := range chunks {
				s.handler.OnRead(ctx, s, opcode, chunk)
			}
		}
	default:
		span.AddEvent(eventFrameDropped)
		s.logger.Error("dropping frame with unknown opcode", zap.Stringer("opcode", frame.Header.Opcode))
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// # Description
//
// Answer a close frame received from the peer and close the session.
//
// If the session has not sent a close frame yet, the received frame is echoed verbatim, or
// answered with a 1002 close frame if its status code is incomplete or invalid. If the session
// already sent a close frame, the received frame completes the close handshake.
func (s *Session) handleClose(ctx context.Context, payload []byte) {
	ctx, span := s.tracer.Start(ctx, spanCloseHandshake, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	s.mu.Lock()
	state, initiated := s.state, s.closeInitiated
	s.closeInitiated = true
	if state == Open {
		s.state = Closing
	}
	s.mu.Unlock()
	if state == Closed {
		span.SetStatus(codes.Ok, codes.Ok.String())
		return
	}
	if !initiated {
		reply, echo := payload, false
		code, reason, err := wsframe.ParseClosePayload(payload)
		switch {
		case err != nil:
			reply = wsframe.NewClosePayload(wsframe.ProtocolError, reasonIncompleteCloseCode)
		case len(payload) > 0 && !code.IsValid():
			reply = wsframe.NewClosePayload(wsframe.ProtocolError, reasonInvalidCloseCode)
		default:
			echo = true
		}
		span.SetAttributes(
			attribute.Int(attrCloseCode, int(code)),
			attribute.String(attrCloseReason, reason),
			attribute.Bool(attrCloseEcho, echo))
		s.logger.Info("close frame received", zap.Uint16("code", uint16(code)), zap.String("reason", reason), zap.Bool("echo", echo))
		s.writeFrame(wsframe.OpClose, reply)
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	s.terminate(ctx)
}

/*************************************************************************************************/
/* SEND                                                                                          */
/*************************************************************************************************/

// # Description
//
// Send a single unfragmented frame with the provided opcode and payload. Frames are never masked.
//
// Sending a close frame starts the close handshake: the session closes when the peer answers with
// its own close frame or drops the connection.
//
// # Returns
//
// ErrSessionNotOpen if the session is not open, an error wrapping wsframe.ErrInvalidOpcode for
// reserved or continuation opcodes and an error wrapping wsframe.ErrInvalidControlFrame for
// control frames with a payload larger than 125 bytes.
func (s *Session) Send(ctx context.Context, opcode wsframe.Opcode, payload []byte) error {
	_, span := s.tracer.Start(ctx, spanSend,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String(attrSessionId, s.id),
			attribute.String(attrOpcode, opcode.String()),
			attribute.Int(attrLength, len(payload)),
		))
	defer span.End()
	if !opcode.IsValid() || opcode == wsframe.OpContinuation {
		return handlePotentialError(fmt.Errorf("%w: %s", wsframe.ErrInvalidOpcode, opcode), span)
	}
	if opcode.IsControl() && len(payload) > wsframe.MaxControlPayload {
		return handlePotentialError(fmt.Errorf("%w: payload of %d bytes", wsframe.ErrInvalidControlFrame, len(payload)), span)
	}
	s.mu.Lock()
	if s.state != Open {
		s.mu.Unlock()
		return handlePotentialError(ErrSessionNotOpen, span)
	}
	if opcode == wsframe.OpClose {
		s.closeInitiated = true
		s.state = Closing
	}
	s.mu.Unlock()
	s.writeFrame(opcode, payload)
	return handlePotentialError(nil, span)
}

// Send a text frame.
func (s *Session) SendText(ctx context.Context, text string) error {
	return s.Send(ctx, wsframe.OpText, []byte(text))
}

// Send a binary frame.
func (s *Session) SendBinary(ctx context.Context, data []byte) error {
	return s.Send(ctx, wsframe.OpBinary, data)
}

// Write header then payload to the transport.
func (s *Session) writeFrame(opcode wsframe.Opcode, payload []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.transport.AsyncWrite(wsframe.EncodeHeader(opcode, uint64(len(payload))))
	if len(payload) > 0 {
		s.transport.AsyncWrite(payload)
	}
	s.idleTicks.Store(0)
}

/*************************************************************************************************/
/* CLOSE                                                                                         */
/*************************************************************************************************/

// # Description
//
// Send a close frame with the provided status code and reason, then close the session without
// waiting for the peer answer. The reason is truncated to fit in a control frame.
//
// The close frame is sent only if the session is open and no close frame has been exchanged yet.
// The session is closed in all cases.
func (s *Session) CloseWithStatus(ctx context.Context, code wsframe.StatusCode, reason string) {
	s.mu.Lock()
	send := s.state == Open && !s.closeInitiated
	if send {
		s.closeInitiated = true
		s.state = Closing
	}
	s.mu.Unlock()
	if send {
		s.writeFrame(wsframe.OpClose, wsframe.NewClosePayload(code, reason))
	}
	s.terminate(ctx)
}

// # Description
//
// Close the session: notify the application, release the transport and notify the owner. Only
// the first call has an effect. Pending writes are flushed by the transport.
func (s *Session) Close(ctx context.Context) {
	s.teardown.Do(func() {
		ctx, span := s.tracer.Start(ctx, spanClose,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String(attrSessionId, s.id)))
		defer span.End()
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		s.handler.OnClose(ctx, s)
		err := s.transport.Close()
		s.cancel()
		if s.owner != nil {
			s.owner.ReleaseSession(s.id)
		}
		if err != nil {
			s.logger.Debug("transport close failed", zap.Error(err))
		}
		s.logger.Info("websocket session closed")
		handlePotentialError(err, span)
	})
}

// Close the session through its owner so it is removed from the registry atomically.
func (s *Session) terminate(ctx context.Context) {
	if s.owner != nil && s.owner.CloseSession(ctx, s.id) {
		return
	}
	s.Close(ctx)
}

/*************************************************************************************************/
/* ACCESSORS                                                                                     */
/*************************************************************************************************/

// Returns the session unique ID.
func (s *Session) ID() string {
	return s.id
}

// Returns the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Returns true once the session is closed.
func (s *Session) IsClosed() bool {
	return s.State() == Closed
}

// Returns a context which is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Returns the peer address.
func (s *Session) RemoteAddress() string {
	return s.transport.RemoteEndpoint()
}

// Returns the upgrade request method. Empty until the session is open.
func (s *Session) Method() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request == nil {
		return ""
	}
	return s.request.Method
}

// Returns the upgrade request path. Empty until the session is open.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request == nil {
		return ""
	}
	return s.request.Path
}

// Returns the value of an upgrade request header (case insensitive) and whether it exists.
func (s *Session) Header(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request == nil {
		return "", false
	}
	return s.request.Header(name)
}

// Returns a copy of the upgrade request headers. Keys are lower cased.
func (s *Session) Headers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	headers := map[string]string{}
	if s.request != nil {
		for k, v := range s.request.Headers {
			headers[k] = v
		}
	}
	return headers
}

// Returns the sub-protocol requested by the client, if any.
func (s *Session) Protocol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request == nil {
		return ""
	}
	return s.request.Protocol
}

// Returns the websocket version announced by the client. 0 until the session is open.
func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request == nil {
		return 0
	}
	return s.request.Version
}

// Returns the Sec-WebSocket-Accept value sent to the client.
func (s *Session) AcceptKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptKey
}

// Returns the application defined URI.
func (s *Session) URI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uri
}

// Set the application defined URI.
func (s *Session) SetURI(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uri = uri
}

// Returns the number of ticks since a frame was last received or sent.
func (s *Session) IdleTicks() int64 {
	return s.idleTicks.Load()
}

// Increment the idle counter and return its new value.
func (s *Session) Tick() int64 {
	return s.idleTicks.Add(1)
}
