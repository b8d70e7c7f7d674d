// This package contains a demo websocket server built on wsserver with the following features:
//   - echo with an optional user provided request ID. User can also request an error to be returned
//   - subscribe/unsubscribe to a heartbeat publication
//   - close all client connections with a status code
//
// Requests are JSON documents. The text received from a client is consumed as a stream of JSON
// values: a request can span several frames and a frame can carry several requests.
package demowsserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gbdevw/gowsserver/wsframe"
	"github.com/gbdevw/gowsserver/wsserver"
	"github.com/gbdevw/gowsserver/wssession"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// Default interval between two heartbeats
	DefaultHeartbeatInterval = 5 * time.Second
	// Maximum size of a partially received request
	maxPendingRequestSize = 64 * 1024
)

// Structure for the demo websocket server
type DemoWebsocketServer struct {
	// Underlying websocket server
	server *wsserver.Server
	// Interval between two heartbeats
	heartbeatInterval time.Duration
	// Client states by session ID
	clients map[string]*client
	// Mutex which protects clients
	mu sync.Mutex
	logger *zap.Logger
	tracer trace.Tracer
}

// State of a connected client
type client struct {
	session *wssession.Session
	// When the client sent its first request
	startTimestamp time.Time
	// Bytes of a partially received request. Only used by OnRead.
	pending []byte
	// Cancel function used to stop the heartbeat publication. Nil when not subscribed.
	cancelHeartbeat context.CancelFunc
	// Mutex which protects cancelHeartbeat
	mu sync.Mutex
}

// # Description
//
// Factory which creates a new, non-started DemoWebsocketServer.
//
// # Inputs
//
//   - opts: Options of the underlying websocket server. Default options are used if nil.
//   - heartbeatInterval: Interval between two heartbeats. DefaultHeartbeatInterval is used if
//     lower or equal to 0.
//   - logger: Logger to use. A no-op logger is used if nil.
//   - tracerProvider: Tracer provider to use. The global tracer provider is used if nil.
//   - meterProvider: Meter provider to use. The global meter provider is used if nil.
//
// # Returns
//
// A new, non-started DemoWebsocketServer or an error if any has occured.
func NewDemoWebsocketServer(
	opts *wsserver.ServerOptions,
	heartbeatInterval time.Duration,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*DemoWebsocketServer, error) {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	srv := &DemoWebsocketServer{
		heartbeatInterval: heartbeatInterval,
		clients:           map[string]*client{},
		logger:            logger,
		tracer:            tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}
	server, err := wsserver.NewServer(opts, srv, logger, tracerProvider, meterProvider)
	if err != nil {
		return nil, err
	}
	srv.server = server
	return srv, nil
}

// Start the underlying websocket server.
func (srv *DemoWebsocketServer) Start(ctx context.Context) error {
	return srv.server.Start(ctx)
}

// Stop the underlying websocket server. Clients receive a going away close frame.
func (srv *DemoWebsocketServer) Stop(ctx context.Context) error {
	return srv.server.Stop(ctx)
}

// Returns the address the server listens on.
func (srv *DemoWebsocketServer) Addr() string {
	return srv.server.Addr()
}

// # Description
//
// Close all client connections with the provided close status code and reason.
//
// # Returns
//
// The number of sessions that have been closed.
func (srv *DemoWebsocketServer) CloseClientConnections(ctx context.Context, code wsframe.StatusCode, reason string) int {
	ctx, span := srv.tracer.Start(ctx, spanCloseClients, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	sessions := srv.server.Sessions()
	for _, session := range sessions {
		session.CloseWithStatus(ctx, code, reason)
		span.AddEvent(eventClientClosed, trace.WithAttributes(attribute.String(attrSessionId, session.ID())))
	}
	span.SetAttributes(attribute.Int(attrClosedClientsCount, len(sessions)))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return len(sessions)
}

/*************************************************************************************************/
/* HANDLER                                                                                       */
/*************************************************************************************************/

// # Description
//
// Append the received chunk to the pending bytes of the client and handle every complete JSON
// request they contain.
func (srv *DemoWebsocketServer) OnRead(ctx context.Context, session *wssession.Session, opcode wsframe.Opcode, data []byte) {
	c := srv.getClient(session)
	c.pending = append(c.pending, data...)
	if len(c.pending) > maxPendingRequestSize {
		c.pending = nil
		srv.writeError(ctx, c, "request is too large", ErrCodeBadRequest, "")
		return
	}
	decoder := json.NewDecoder(bytes.NewReader(c.pending))
	consumed := int64(0)
	for {
		var raw json.RawMessage
		err := decoder.Decode(&raw)
		switch {
		case err == nil:
			consumed = decoder.InputOffset()
			srv.handleMessage(ctx, c, raw)
			continue
		case errors.Is(err, io.EOF):
			c.pending = nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			// Wait for the rest of the request
			c.pending = append([]byte(nil), c.pending[consumed:]...)
		default:
			c.pending = nil
			srv.logger.Warn("could not decode client request",
				zap.String("session_id", session.ID()), zap.Error(err))
			srv.writeError(ctx, c, fmt.Sprintf("could not decode message: %s", err.Error()), ErrCodeBadRequest, "")
		}
		return
	}
}

// Stop the heartbeat publication of the closed session and forget its state.
func (srv *DemoWebsocketServer) OnClose(ctx context.Context, session *wssession.Session) {
	srv.mu.Lock()
	c, found := srv.clients[session.ID()]
	delete(srv.clients, session.ID())
	srv.mu.Unlock()
	if found {
		c.mu.Lock()
		if c.cancelHeartbeat != nil {
			c.cancelHeartbeat()
			c.cancelHeartbeat = nil
		}
		c.mu.Unlock()
	}
	srv.logger.Info("client disconnected",
		zap.String("session_id", session.ID()),
		zap.String("remote", session.RemoteAddress()))
}

// Get or create the state of the client bound to the session.
func (srv *DemoWebsocketServer) getClient(session *wssession.Session) *client {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	c, found := srv.clients[session.ID()]
	if found {
		return c
	}
	c = &client{session: session, startTimestamp: time.Now()}
	// OnClose may already have run for this session
	if !session.IsClosed() {
		srv.clients[session.ID()] = c
	}
	return c
}

// Route a request to its handler based on its type.
func (srv *DemoWebsocketServer) handleMessage(ctx context.Context, c *client, raw []byte) {
	ctx, span := srv.tracer.Start(ctx, spanHandle,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(attrSessionId, c.session.ID())))
	defer span.End()
	defer span.SetStatus(codes.Ok, codes.Ok.String())
	base := new(Request)
	if err := json.Unmarshal(raw, base); err != nil {
		span.RecordError(err)
		if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
			// Object with a mistyped envelope field
			srv.writeError(ctx, c, fmt.Sprintf("malformatted request: %s", err.Error()), ErrCodeBadRequest, "")
			return
		}
		srv.writeError(ctx, c, fmt.Sprintf("could not find type field in message: %s", err.Error()), ErrCodeUnknownMessageType, "")
		return
	}
	span.SetAttributes(attribute.String(attrMsgType, base.MsgType))
	switch base.MsgType {
	case MsgTypeEchoRequest:
		req := new(EchoRequest)
		if srv.decodeRequest(ctx, c, span, raw, req, base.ReqId) {
			srv.handleEcho(ctx, c, req)
		}
	case MsgTypeSubscribeRequest:
		req := new(SubscribeRequest)
		if srv.decodeRequest(ctx, c, span, raw, req, base.ReqId) {
			srv.handleSubscribe(ctx, c, req)
		}
	case MsgTypeUnsubscribeRequest:
		req := new(UnsubscribeRequest)
		if srv.decodeRequest(ctx, c, span, raw, req, base.ReqId) {
			srv.handleUnsubscribe(ctx, c, req)
		}
	default:
		err := fmt.Errorf("unknown message type: %s", base.MsgType)
		span.RecordError(err)
		srv.writeError(ctx, c, err.Error(), ErrCodeUnknownMessageType, "")
	}
}

// Unmarshal a typed request. A bad request error is written back when it fails.
func (srv *DemoWebsocketServer) decodeRequest(ctx context.Context, c *client, span trace.Span, raw []byte, req any, reqId string) bool {
	if err := json.Unmarshal(raw, req); err != nil {
		span.RecordError(err)
		srv.writeError(ctx, c, fmt.Sprintf("malformatted request: %s", err.Error()), ErrCodeBadRequest, reqId)
		return false
	}
	return true
}

/*************************************************************************************************/
/* FEATURE: ECHO                                                                                 */
/*************************************************************************************************/

func (srv *DemoWebsocketServer) handleEcho(ctx context.Context, c *client, req *EchoRequest) {
	ctx, span := srv.tracer.Start(ctx, spanEcho,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Bool(attrEchoReturnError, req.Err),
			attribute.String(attrReqId, req.ReqId),
		))
	defer span.End()
	resp := EchoResponse{Response: newResponse(MsgTypeEchoResponse, req.ReqId)}
	if req.Err {
		resp.Status = StatusError
		resp.Err = &ErrorMessageData{Message: "client asked for it", Code: ErrCodeAskedByClient, ReqId: req.ReqId}
	} else {
		resp.Data = &EchoResponseData{Echo: req.Echo}
	}
	srv.write(ctx, c, resp)
	span.SetStatus(codes.Ok, codes.Ok.String())
}

/*************************************************************************************************/
/* FEATURE: HEARTBEAT                                                                            */
/*************************************************************************************************/

func (srv *DemoWebsocketServer) handleSubscribe(ctx context.Context, c *client, req *SubscribeRequest) {
	ctx, span := srv.tracer.Start(ctx, spanSubscribe,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(attrTopic, req.Topic),
			attribute.String(attrReqId, req.ReqId),
		))
	defer span.End()
	defer span.SetStatus(codes.Ok, codes.Ok.String())
	resp := SubscribeResponse{Response: newResponse(MsgTypeSubscribeResponse, req.ReqId)}
	if req.Topic != TopicHeartbeat {
		resp.setError(span, fmt.Sprintf("topic: %s - is not known by the server", req.Topic), ErrCodeTopicNotFound)
		srv.write(ctx, c, resp)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelHeartbeat != nil {
		resp.setError(span, fmt.Sprintf("topic %s has been already subscribed", req.Topic), ErrCodeAlreadySubscribed)
		srv.write(ctx, c, resp)
		return
	}
	publicationCtx, cancel := context.WithCancel(c.session.Context())
	c.cancelHeartbeat = cancel
	resp.Data = &TopicData{Topic: req.Topic}
	srv.write(ctx, c, resp)
	go srv.publishHeartbeats(publicationCtx, c)
}

func (srv *DemoWebsocketServer) handleUnsubscribe(ctx context.Context, c *client, req *UnsubscribeRequest) {
	ctx, span := srv.tracer.Start(ctx, spanUnsubscribe,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(attrTopic, req.Topic),
			attribute.String(attrReqId, req.ReqId),
		))
	defer span.End()
	defer span.SetStatus(codes.Ok, codes.Ok.String())
	resp := UnsubscribeResponse{Response: newResponse(MsgTypeUnsubscribeResponse, req.ReqId)}
	if req.Topic != TopicHeartbeat {
		resp.setError(span, fmt.Sprintf("topic: %s - is not known by the server", req.Topic), ErrCodeTopicNotFound)
		srv.write(ctx, c, resp)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelHeartbeat == nil {
		resp.setError(span, fmt.Sprintf("topic %s has not been subscribed", req.Topic), ErrCodeNotSubscribed)
		srv.write(ctx, c, resp)
		return
	}
	c.cancelHeartbeat()
	c.cancelHeartbeat = nil
	resp.Data = &TopicData{Topic: req.Topic}
	srv.write(ctx, c, resp)
}

// Publish heartbeats to the client until the publication context is done.
func (srv *DemoWebsocketServer) publishHeartbeats(ctx context.Context, c *client) {
	ticker := time.NewTicker(srv.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			spanCtx, span := srv.tracer.Start(ctx, spanHeartbeat,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String(attrSessionId, c.session.ID())))
			err := srv.write(spanCtx, c, Heartbeat{
				Message:   Message{MsgType: MsgTypeHeartbeat},
				Timestamp: now.UTC().Format(time.RFC3339),
				Uptime:    int64(now.Sub(c.startTimestamp).Seconds()),
			})
			if err != nil {
				handleError(err, span, codes.Error, codes.Error.String())
				span.End()
				if ctx.Err() == nil {
					srv.logger.Warn("stopping heartbeat publication",
						zap.String("session_id", c.session.ID()), zap.Error(err))
				}
				return
			}
			span.SetStatus(codes.Ok, codes.Ok.String())
			span.End()
		}
	}
}

/*************************************************************************************************/
/* UTILITIES                                                                                     */
/*************************************************************************************************/

// Build a successful response of the provided type.
func newResponse(msgType string, reqId string) Response {
	return Response{Message: Message{MsgType: msgType}, ReqId: reqId, Status: StatusOK}
}

// Turn the response into an error response and record the error in the span.
func (resp *Response) setError(span trace.Span, message string, code string) {
	span.RecordError(errors.New(message))
	resp.Status = StatusError
	resp.Err = &ErrorMessageData{Message: message, Code: code, ReqId: resp.ReqId}
}

// Write an error message to the client.
func (srv *DemoWebsocketServer) writeError(ctx context.Context, c *client, message string, code string, reqId string) {
	srv.write(ctx, c, ErrorMessage{
		Message:          Message{MsgType: MsgTypeError},
		ErrorMessageData: ErrorMessageData{Message: message, Code: code, ReqId: reqId},
	})
}

// # Description
//
// Marshal the message and send it as a text frame to the client.
//
// # Returns
//
// An error if the message could not be marshalled or the session is not open.
func (srv *DemoWebsocketServer) write(ctx context.Context, c *client, msg any) error {
	ctx, span := srv.tracer.Start(ctx, spanWrite,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(attrSessionId, c.session.ID())))
	defer span.End()
	raw, err := json.Marshal(msg)
	if err != nil {
		srv.logger.Error("could not marshal message", zap.String("session_id", c.session.ID()), zap.Error(err))
		return handleError(err, span, codes.Error, codes.Error.String())
	}
	if err := c.session.SendText(ctx, string(raw)); err != nil {
		srv.logger.Debug("could not write message", zap.String("session_id", c.session.ID()), zap.Error(err))
		return handleError(err, span, codes.Error, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
