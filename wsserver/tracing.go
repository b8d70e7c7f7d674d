package wsserver

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING & METRICS RELATED CONSTANTS                                                           */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer and meter
	pkgName = "wsserver"
	// Package version
	pkgVersion = "0.0.0"

	// Namespace used by spans, events, attributes and metrics
	namespace = "wsserver"

	// Name of span used to trace Start
	spanStart = namespace + ".start"
	// Name of span used to trace Stop
	spanStop = namespace + ".stop"
	// Name of span used to trace a new connection
	spanAccept = namespace + ".accept"
	// Name of span used to trace an idle sweep round
	spanIdleSweep = namespace + ".idle_sweep"

	// Event used in span to signal a session has been closed by the server
	eventSessionClosed = namespace + ".session_closed"

	// Attribute used to store the listen address
	attrAddr = namespace + ".addr"
	// Attribute used to store whether TLS is enabled
	attrTLS = namespace + ".tls"
	// Attribute used to store the remote address
	attrRemote = namespace + ".remote"
	// Attribute used to store session ID
	attrSessionId = namespace + ".session_id"
	// Attribute used to store the number of sessions closed by a sweep or a shutdown
	attrClosedCount = namespace + ".closed_count"
)

// Constants used for metrics.
const (
	// Gauge: number of sessions in the registry
	metricSessionsActive = namespace + ".sessions_active"
	// Counter: number of accepted connections since the server has started
	metricConnectionsTotal = namespace + ".connections_total"
	// Gauge: 1 if the server is started, 0 otherwise
	metricStartedInfo = namespace + ".started_info"
	// Gauge: server start time as a unix timestamp
	metricStartUnixInfo = namespace + ".start_unix_timestamp_seconds_info"
	// Counter: number of rejected upgrade requests
	metricHandshakeFailuresTotal = namespace + ".handshake_failures_total"
	// Counter: number of sessions dropped after a framing error
	metricProtocolErrorsTotal = namespace + ".protocol_errors_total"
	// Counter: number of bytes written to clients
	metricBytesSentTotal = namespace + ".bytes_sent_total"
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
