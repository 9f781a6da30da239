package config

import "time"

// Config is the root configuration shared by the union binaries.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Shards     []ShardConfig    `yaml:"shards"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Merge      MergeConfig      `yaml:"merge"`
	Aggregates AggregatesConfig `yaml:"aggregates"`
	Search     SearchConfig     `yaml:"search"`
	Rates      RatesConfig      `yaml:"rates"`
	Stream     StreamConfig     `yaml:"stream"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID  string `yaml:"id"`
	Env string `yaml:"env"`
}

// ShardConfig describes one per-chain backend.
type ShardConfig struct {
	Blockchain string        `yaml:"blockchain"`
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"`
	Dialect    string        `yaml:"dialect"` // "continuation" or "cursor"; empty picks the chain default
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Disabled   bool          `yaml:"disabled"`
}

// Database drivers.
const (
	DriverPostgres     = "postgres"      // pgx with hand-written SQL
	DriverGormPostgres = "gorm-postgres" // GORM over PostgreSQL
	DriverSQLite       = "sqlite"        // GORM over an embedded SQLite file
	DriverMemory       = "memory"
)

// DatabaseConfig selects and configures the aggregate store.
type DatabaseConfig struct {
	Driver     string   `yaml:"driver"`
	Postgres   DBConfig `yaml:"postgres"`
	SQLitePath string   `yaml:"sqlite_path"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig configures the event bus. An empty Addr keeps events in process.
type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
}

// MergeConfig bounds merged pagination.
type MergeConfig struct {
	DefaultSize  int           `yaml:"default_size"`
	MaxSize      int           `yaml:"max_size"`
	ShardTimeout time.Duration `yaml:"shard_timeout"`
	StuckRetries int           `yaml:"stuck_retries"`
}

// AggregatesConfig tunes the aggregate update engine. Maps are keyed by blockchain name.
type AggregatesConfig struct {
	MaxAttempts   int                 `yaml:"max_attempts"`
	BidCurrencies map[string][]string `yaml:"bid_currencies"`
	Origins       map[string][]string `yaml:"origins"`
}

// SearchConfig bounds a best-order search.
type SearchConfig struct {
	InitialBatch   int `yaml:"initial_batch"`
	EscalatedBatch int `yaml:"escalated_batch"`
	EscalateAfter  int `yaml:"escalate_after"`
	MaxAttempts    int `yaml:"max_attempts"`
}

// RatesConfig configures the currency-rate service and the rate watcher.
type RatesConfig struct {
	URL          string         `yaml:"url"`
	Timeout      time.Duration  `yaml:"timeout"`
	CacheTTL     time.Duration  `yaml:"cache_ttl"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	Currencies   []RateCurrency `yaml:"currencies"`
}

// RateCurrency is one currency the watcher tracks.
type RateCurrency struct {
	Blockchain string `yaml:"blockchain"`
	Address    string `yaml:"address"`
}

// StreamConfig holds order-stream WebSocket settings.
type StreamConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// ConsumerConfig sizes the event consumers.
type ConsumerConfig struct {
	Workers   int `yaml:"workers"`
	DedupSize int `yaml:"dedup_size"`
}

// ReconcileConfig drives the reconciliation sweep.
type ReconcileConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	BatchSize   int           `yaml:"batch_size"`
}

// HTTPConfig configures the read API.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"` // gin mode: debug, release or test
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Aggregate cache, used only when redis is configured so entries can
	// follow the listener's events.
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
}

// LoggingConfig configures slog output and optional file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}
