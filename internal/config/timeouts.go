package config

import "time"

// TimeoutConfig holds timeout settings for the HTTP server.
type TimeoutConfig struct {
	// ReadRequest bounds reading a request including its body (image
	// payloads can be large). Default: 30s
	ReadRequest time.Duration

	// Request is the per-request handler deadline. Default: 60s
	Request time.Duration

	// Idle is the keep-alive timeout between requests. Default: 120s
	Idle time.Duration

	// Shutdown bounds graceful shutdown. Default: 30s
	Shutdown time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		ReadRequest: 30 * time.Second,
		Request:     60 * time.Second,
		Idle:        120 * time.Second,
		Shutdown:    30 * time.Second,
	}
}
