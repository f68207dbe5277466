package config

// DefaultServerURL is the websocket endpoint of a locally running chat server.
const DefaultServerURL = "ws://127.0.0.1:8090"

// DefaultAPIURL is the HTTP API of a locally running chat server.
const DefaultAPIURL = "http://127.0.0.1:8080"

const (
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "console"
	DefaultHeartbeatIntervalMs = 9900
	DefaultHandshakeTimeoutMs  = 10000
	DefaultRestoreTimeoutMs    = 10000
	DefaultLoginTimeoutMs      = 120000
	DefaultSendRate            = 50
	DefaultSendBurst           = 20
)
