package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultShardTimeout       = 30 * time.Second
	DefaultShardRetries       = 3
	DefaultDriver             = DriverPostgres
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultChannelPrefix      = "union.aggregates"
	DefaultRedisDialTimeout   = 5 * time.Second
	DefaultPageSize           = 50
	DefaultMaxPageSize        = 1000
	DefaultMergeShardTimeout  = 10 * time.Second
	DefaultStuckRetries       = 3
	DefaultUpdateAttempts     = 5
	DefaultInitialBatch       = 1
	DefaultEscalatedBatch     = 10
	DefaultEscalateAfter      = 2
	DefaultSearchAttempts     = 50
	DefaultRatesTimeout       = 10 * time.Second
	DefaultRatesCacheTTL      = time.Minute
	DefaultRatesPollInterval  = 5 * time.Minute
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultStreamBufferSize   = 10000
	DefaultConsumerWorkers    = 4
	DefaultDedupSize          = 100000
	DefaultReconcileInterval  = 30 * time.Second
	DefaultReconcileWorkers   = 4
	DefaultReconcileBatch     = 100
	DefaultHTTPAddr           = ":8080"
	DefaultHTTPMode           = "release"
	DefaultHTTPTimeout        = 30 * time.Second
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultLogMaxSizeMB       = 100
	DefaultLogMaxBackups      = 5
	DefaultLogMaxAgeDays      = 14
)

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	for i := range c.Shards {
		s := &c.Shards[i]
		if s.Timeout == 0 {
			s.Timeout = DefaultShardTimeout
		}
		if s.MaxRetries == 0 {
			s.MaxRetries = DefaultShardRetries
		}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	applyDBDefaults(&c.Database.Postgres)

	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = DefaultChannelPrefix
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = DefaultRedisDialTimeout
	}

	if c.Merge.DefaultSize == 0 {
		c.Merge.DefaultSize = DefaultPageSize
	}
	if c.Merge.MaxSize == 0 {
		c.Merge.MaxSize = DefaultMaxPageSize
	}
	if c.Merge.ShardTimeout == 0 {
		c.Merge.ShardTimeout = DefaultMergeShardTimeout
	}
	if c.Merge.StuckRetries == 0 {
		c.Merge.StuckRetries = DefaultStuckRetries
	}

	if c.Aggregates.MaxAttempts == 0 {
		c.Aggregates.MaxAttempts = DefaultUpdateAttempts
	}

	if c.Search.InitialBatch == 0 {
		c.Search.InitialBatch = DefaultInitialBatch
	}
	if c.Search.EscalatedBatch == 0 {
		c.Search.EscalatedBatch = DefaultEscalatedBatch
	}
	if c.Search.EscalateAfter == 0 {
		c.Search.EscalateAfter = DefaultEscalateAfter
	}
	if c.Search.MaxAttempts == 0 {
		c.Search.MaxAttempts = DefaultSearchAttempts
	}

	if c.Rates.Timeout == 0 {
		c.Rates.Timeout = DefaultRatesTimeout
	}
	if c.Rates.CacheTTL == 0 {
		c.Rates.CacheTTL = DefaultRatesCacheTTL
	}
	if c.Rates.PollInterval == 0 {
		c.Rates.PollInterval = DefaultRatesPollInterval
	}

	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultReadTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	if c.Consumer.Workers == 0 {
		c.Consumer.Workers = DefaultConsumerWorkers
	}
	if c.Consumer.DedupSize == 0 {
		c.Consumer.DedupSize = DefaultDedupSize
	}

	if c.Reconcile.Interval == 0 {
		c.Reconcile.Interval = DefaultReconcileInterval
	}
	if c.Reconcile.Concurrency == 0 {
		c.Reconcile.Concurrency = DefaultReconcileWorkers
	}
	if c.Reconcile.BatchSize == 0 {
		c.Reconcile.BatchSize = DefaultReconcileBatch
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.Mode == "" {
		c.HTTP.Mode = DefaultHTTPMode
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = DefaultHTTPTimeout
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = DefaultHTTPTimeout
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
