package wssession

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer
	pkgName = "wssession"
	// Package version
	pkgVersion = "0.0.0"

	// Namespace used by spans, events and attributes
	namespace = "wssession"
	// Sub-namespace used by spans related to user provided callbacks
	callbacksNamespace = namespace + ".callback"

	// Name of span used to trace a read completion
	spanRead = namespace + ".read"
	// Name of span used to trace the upgrade handshake
	spanHandshake = namespace + ".handshake"
	// Name of span used to trace the dispatch of a decoded frame
	spanFrame = namespace + ".frame"
	// Name of span used to trace the close handshake
	spanCloseHandshake = namespace + ".close_handshake"
	// Name of span used to trace session teardown
	spanClose = namespace + ".close"
	// Name of span used to trace Send
	spanSend = namespace + ".send"
	// Name of span used to trace OnRead callback call
	spanOnRead = callbacksNamespace + ".on_read"
	// Name of span used to trace OnClose callback call
	spanOnClose = callbacksNamespace + ".on_close"

	// Event used in span to signal the handshake has completed
	eventHandshakeCompleted = namespace + ".handshake_completed"
	// Event used in span to signal a pong has been received
	eventPongReceived = namespace + ".pong_received"
	// Event used in span to signal a frame has been dropped
	eventFrameDropped = namespace + ".frame_dropped"
	// Event used in span to signal a message has been delivered
	eventMessageDelivered = namespace + ".message_delivered"

	// Attribute used to store session ID
	attrSessionId = namespace + ".session_id"
	// Attribute used to store the remote address
	attrRemote = namespace + ".remote"
	// Attribute used to store the session state
	attrState = namespace + ".state"
	// Attribute used to store received bytes count
	attrLength = namespace + ".length"
	// Attribute used to indicate frame opcode
	attrOpcode = namespace + ".frame.opcode"
	// Attribute used to indicate frame fin bit
	attrFin = namespace + ".frame.fin"
	// Attribute used to indicate the number of delivered chunks
	attrChunks = namespace + ".message.chunks"
	// Attribute used to indicate handshake outcome
	attrOutcome = namespace + ".handshake.outcome"
	// Attribute used to indicate request path
	attrPath = namespace + ".handshake.path"
	// Attribute used to indicate close reason code
	attrCloseCode = namespace + ".close_code"
	// Attribute used to indicate close reason
	attrCloseReason = namespace + ".close_reason"
	// Attribute used to indicate whether the received close frame is echoed
	attrCloseEcho = namespace + ".close_echo"
)

// # Description
//
// The function records the input error in the provided span using span.RecordError(err) and set
// the span status with the provided code and description. The function returns the provided error.
func handleError(err error, span trace.Span, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}

// # Description
//
// If the error is not nil, the function records the input error in the provided span and set the
// span status with an error code and description. In the other case, the span status is set with
// a Ok code. The function returns the provided error in all cases.
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
		return err
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
