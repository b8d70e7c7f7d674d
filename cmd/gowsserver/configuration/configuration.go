package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Applications which can be served
const (
	ApplicationEcho = "echo"
	ApplicationDemo = "demo"
)

// Application configuration loaded from environment variables.
type Configuration struct {
	// Application served by the websocket server: echo or demo
	Application string
	// Interval between two heartbeats of the demo application
	HeartbeatInterval time.Duration
	// Listen address of the websocket server
	ListenAddr string
	// Path to the TLS certificate. TLS is disabled when empty.
	TLSCertFile string
	// Path to the TLS private key
	TLSKeyFile string
	// Number of idle ticks before an idle session is closed. 0 disables the idle sweep.
	IdleTimeoutTicks int64
	// Indicates whether SO_REUSEPORT is set on the listening socket
	ReusePort bool
	// Indicates whether tracing is enabled or not
	TracingEnabled bool
	// Endpoint of the OTLP/HTTP tracing backend
	TracingEndpoint string
	// Indicates whether the development logger is used
	Development bool
}

// # Description
//
// Load the configuration from the following environment variables:
//   - GOWSSERVER_APPLICATION: echo or demo. Defaults to echo.
//   - GOWSSERVER_HEARTBEAT_INTERVAL: Demo heartbeat interval (Go duration). Defaults to 5s.
//   - GOWSSERVER_LISTEN_ADDR: Listen address. Defaults to 0.0.0.0:8081.
//   - GOWSSERVER_TLS_CERT_FILE & GOWSSERVER_TLS_KEY_FILE: TLS certificate and key.
//   - GOWSSERVER_IDLE_TIMEOUT_TICKS: Idle timeout in ticks. Defaults to 60.
//   - GOWSSERVER_REUSE_PORT: Set SO_REUSEPORT.
//   - GOWSSERVER_TRACING_ENABLED: Enable OTLP tracing.
//   - GOWSSERVER_TRACING_ENDPOINT: OTLP/HTTP endpoint. Defaults to localhost:4318.
//   - GOWSSERVER_DEVELOPMENT: Use the development logger.
//
// # Returns
//
// The loaded configuration or an error if a variable cannot be parsed.
func LoadConfiguration() (Configuration, error) {
	config := Configuration{
		Application:       getenv("GOWSSERVER_APPLICATION", ApplicationEcho),
		HeartbeatInterval: 5 * time.Second,
		ListenAddr:        getenv("GOWSSERVER_LISTEN_ADDR", "0.0.0.0:8081"),
		TLSCertFile:       os.Getenv("GOWSSERVER_TLS_CERT_FILE"),
		TLSKeyFile:        os.Getenv("GOWSSERVER_TLS_KEY_FILE"),
		TracingEndpoint:   getenv("GOWSSERVER_TRACING_ENDPOINT", "localhost:4318"),
		IdleTimeoutTicks:  60,
	}
	if config.Application != ApplicationEcho && config.Application != ApplicationDemo {
		return Configuration{}, fmt.Errorf("invalid GOWSSERVER_APPLICATION: %s", config.Application)
	}
	var err error
	if raw := os.Getenv("GOWSSERVER_HEARTBEAT_INTERVAL"); raw != "" {
		config.HeartbeatInterval, err = time.ParseDuration(raw)
		if err != nil {
			return Configuration{}, fmt.Errorf("invalid GOWSSERVER_HEARTBEAT_INTERVAL: %w", err)
		}
	}
	if raw := os.Getenv("GOWSSERVER_IDLE_TIMEOUT_TICKS"); raw != "" {
		config.IdleTimeoutTicks, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Configuration{}, fmt.Errorf("invalid GOWSSERVER_IDLE_TIMEOUT_TICKS: %w", err)
		}
	}
	if config.ReusePort, err = getbool("GOWSSERVER_REUSE_PORT"); err != nil {
		return Configuration{}, err
	}
	if config.TracingEnabled, err = getbool("GOWSSERVER_TRACING_ENABLED"); err != nil {
		return Configuration{}, err
	}
	if config.Development, err = getbool("GOWSSERVER_DEVELOPMENT"); err != nil {
		return Configuration{}, err
	}
	return config, nil
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getbool(key string) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
