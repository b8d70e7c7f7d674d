// This package contains the implementation of a simple echo websocket server: every text or binary
// chunk received from a client is sent back with the same opcode.
package echowsserver

import (
	"context"

	"github.com/gbdevw/gowsserver/wsframe"
	"github.com/gbdevw/gowsserver/wsserver"
	"github.com/gbdevw/gowsserver/wssession"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Structure for the echo websocket server
type EchoWebsocketServer struct {
	// Underlying websocket server
	server *wsserver.Server
	// Logger
	logger *zap.Logger
}

// # Description
//
// Factory which creates a new, non-started EchoWebsocketServer.
//
// # Inputs
//
//   - opts: Options of the underlying websocket server. If nil, default options are used: the
//     server listens on localhost:8080.
//   - logger: Logger to use. If nil, a no-op logger is used.
//   - tracerProvider: Tracer provider to use. If nil, the global tracer provider is used.
//   - meterProvider: Meter provider to use. If nil, the global meter provider is used.
//
// # Returns
//
// A new, non-started EchoWebsocketServer or an error if any has occured.
func NewEchoWebsocketServer(
	opts *wsserver.ServerOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*EchoWebsocketServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	echo := &EchoWebsocketServer{logger: logger}
	server, err := wsserver.NewServer(opts, echo, logger, tracerProvider, meterProvider)
	if err != nil {
		return nil, err
	}
	echo.server = server
	return echo, nil
}

// # Description
//
// Start the websocket server that will accept incoming websocket connections.
func (srv *EchoWebsocketServer) Start(ctx context.Context) error {
	return srv.server.Start(ctx)
}

// # Description
//
// Stop the websocket server. Connected clients receive a going away close frame.
//
// # Returns
//
// Nil in case of success, an error otherwise.
func (srv *EchoWebsocketServer) Stop(ctx context.Context) error {
	return srv.server.Stop(ctx)
}

// Returns the address the server listens on.
func (srv *EchoWebsocketServer) Addr() string {
	return srv.server.Addr()
}

// Echo the received chunk.
func (srv *EchoWebsocketServer) OnRead(ctx context.Context, session *wssession.Session, opcode wsframe.Opcode, data []byte) {
	srv.logger.Debug("echo",
		zap.String("session_id", session.ID()),
		zap.Stringer("opcode", opcode),
		zap.Int("length", len(data)))
	if err := session.Send(ctx, opcode, data); err != nil {
		srv.logger.Warn("echo failed", zap.String("session_id", session.ID()), zap.Error(err))
	}
}

// Log the closed session.
func (srv *EchoWebsocketServer) OnClose(ctx context.Context, session *wssession.Session) {
	srv.logger.Info("connection closed",
		zap.String("session_id", session.ID()),
		zap.String("remote", session.RemoteAddress()))
}
