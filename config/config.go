package config

import "time"

const MAX_RETRY_COUNT int = 3

// RetryBackoff is the delay applied before attempt n+1; the last value
// repeats for any attempt beyond the schedule.
var RetryBackoff = []time.Duration{1 * time.Minute, 5 * time.Minute, 15 * time.Minute}

const RETRY_SWEEP_INTERVAL = 5 * time.Minute
const RETRY_SWEEP_BATCH_SIZE int = 50

type Config struct {
	PostgresConfig   PostgresConfig
	HttpPort         int
	LogLevel         string
	Development      bool
	WebhookTimeout   time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int
	WorkflowCacheTTL time.Duration
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}
