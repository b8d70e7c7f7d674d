package demowsserver

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Constants used for tracing purpose.
const (
	pkgName    = "demowsserver"
	pkgVersion = "0.0.0"
	namespace  = "demowsserver"

	spanHandle             = namespace + ".handle"
	spanEcho               = namespace + ".echo"
	spanSubscribe          = namespace + ".subscribe"
	spanUnsubscribe        = namespace + ".unsubscribe"
	spanHeartbeat          = namespace + ".heartbeat"
	spanWrite              = namespace + ".write"
	spanCloseClients       = namespace + ".close_clients"
	eventClientClosed      = namespace + ".client_closed"
	attrSessionId          = namespace + ".session_id"
	attrMsgType            = namespace + ".msg_type"
	attrReqId              = namespace + ".req_id"
	attrTopic              = namespace + ".topic"
	attrEchoReturnError    = namespace + ".echo_return_error"
	attrClosedClientsCount = namespace + ".closed_count"
)

// Record the error in the span and set the span status. Returns the provided error.
func handleError(err error, span trace.Span, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}
