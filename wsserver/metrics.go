package wsserver

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Internal structure used to retain references to instruments that record server metrics.
type serverInstruments struct {
	// Gauge that monitors the number of registered sessions
	sessionsActive metric.Int64ObservableGauge
	// Counter that monitors the total number of accepted connections
	connectionsTotal metric.Int64ObservableCounter
	// Gauge that monitors server Started state flag
	startedInfo metric.Int64ObservableGauge
	// Gauge that retains the server start time as a unix timestamp (seconds)
	startUnixInfo metric.Int64ObservableGauge
	// Counter that records rejected upgrade requests
	handshakeFailures metric.Int64Counter
	// Counter that records sessions dropped after a framing error
	protocolErrors metric.Int64Counter
	// Counter that records bytes written to clients
	bytesSent metric.Int64Counter
}

// # Description
//
// Create the server instruments. Observable instruments read the server state on collection.
func newServerInstruments(meter metric.Meter, srv *Server) (*serverInstruments, error) {
	sessionsActive, err := meter.Int64ObservableGauge(metricSessionsActive,
		metric.WithDescription("Number of live websocket sessions"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(int64(srv.sessions.count()))
			return nil
		}))
	if err != nil {
		return nil, err
	}
	connectionsTotal, err := meter.Int64ObservableCounter(metricConnectionsTotal,
		metric.WithDescription("Number of accepted connections"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(srv.connectionsCount.Load())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	startedInfo, err := meter.Int64ObservableGauge(metricStartedInfo,
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			if srv.IsStarted() {
				o.Observe(1)
			} else {
				o.Observe(0)
			}
			return nil
		}))
	if err != nil {
		return nil, err
	}
	startUnixInfo, err := meter.Int64ObservableGauge(metricStartUnixInfo,
		metric.WithUnit("s"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(srv.startUnixTimestamp.Load())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	handshakeFailures, err := meter.Int64Counter(metricHandshakeFailuresTotal,
		metric.WithDescription("Number of rejected upgrade requests"))
	if err != nil {
		return nil, err
	}
	protocolErrors, err := meter.Int64Counter(metricProtocolErrorsTotal,
		metric.WithDescription("Number of sessions dropped after a framing error"))
	if err != nil {
		return nil, err
	}
	bytesSent, err := meter.Int64Counter(metricBytesSentTotal,
		metric.WithUnit("By"),
		metric.WithDescription("Number of bytes written to clients"))
	if err != nil {
		return nil, err
	}
	return &serverInstruments{
		sessionsActive:    sessionsActive,
		connectionsTotal:  connectionsTotal,
		startedInfo:       startedInfo,
		startUnixInfo:     startUnixInfo,
		handshakeFailures: handshakeFailures,
		protocolErrors:    protocolErrors,
		bytesSent:         bytesSent,
	}, nil
}
