// The package implements the server side websocket session: the state machine which drives the
// upgrade handshake, decodes and reassembles incoming frames, answers control frames and encodes
// outgoing frames on top of an asynchronous byte stream transport.
package wssession

import (
	"context"

	"github.com/gbdevw/gowsserver/wsframe"
)

// Interface which describes the byte stream transport a session runs on top of (TCP, optionally
// TLS terminated).
//
// Read completions are delivered by calling Session.OnRead. The transport MUST deliver at most one
// read completion at a time for a session and MUST NOT deliver a new one before AsyncRead has been
// called again.
type Transport interface {
	// # Description
	//
	// Arm exactly one more read. The read completion is delivered later through Session.OnRead.
	// AsyncRead MUST NOT block.
	AsyncRead()
	// # Description
	//
	// Enqueue bytes for output and return immediately. Bytes enqueued by consecutive calls MUST be
	// written in order. data MUST be copied if it is retained after AsyncWrite returns.
	AsyncWrite(data []byte)
	// # Description
	//
	// Tear down the transport. Bytes already enqueued SHOULD be flushed before the underlying
	// connection is closed. Close MUST NOT block on the read completion being processed: it can be
	// called from inside Session.OnRead.
	Close() error
	// # Description
	//
	// Return a human readable peer address.
	RemoteEndpoint() string
}

// Interface which describes the application callbacks called by a session.
type Handler interface {
	// # Description
	//
	// Called for each decoded text or binary payload chunk, once the frame which completes the
	// message has been received. Each frame payload of a fragmented message is delivered by a
	// separate call. opcode is the message opcode (text or binary) even for continuation frames.
	//
	// data is owned by the callee.
	OnRead(ctx context.Context, session *Session, opcode wsframe.Opcode, data []byte)
	// # Description
	//
	// Called exactly once per session, when the session closes whatever the reason.
	OnClose(ctx context.Context, session *Session)
}

// Interface implemented by the component which owns the session (server registry). The session
// asks its owner to close it when the protocol mandates it so the owner can drop it atomically.
type Owner interface {
	// # Description
	//
	// Look up the session with the provided ID, remove it and close it. Returns false if the
	// session is unknown.
	CloseSession(ctx context.Context, id string) bool
	// # Description
	//
	// Forget the session with the provided ID. Called once when the session has closed.
	ReleaseSession(id string)
}

// Optional interface an Owner can implement to be notified of protocol failures.
type Observer interface {
	// Called when an upgrade request is rejected.
	OnHandshakeFailure(ctx context.Context, session *Session, err error)
	// Called when a framing error makes the session drop the connection.
	OnProtocolError(ctx context.Context, session *Session, err error)
}
