package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	EventRequestTimeout   = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const RetentionJobInterval = 1 * time.Hour

// Maximum chat message length accepted from clients
const MaxMessageLength = 4000

// Maximum inbound event body size in bytes
const MaxEventBodySize = 64 * 1024
