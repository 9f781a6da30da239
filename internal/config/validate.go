package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/union-data/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Shards) == 0 {
		return errors.New("shards: at least one shard is required")
	}
	seen := make(map[model.Blockchain]bool, len(c.Shards))
	for i := range c.Shards {
		prefix := fmt.Sprintf("shards[%d]", i)
		if err := c.Shards[i].validate(prefix); err != nil {
			return err
		}
		chain := model.Blockchain(strings.ToUpper(c.Shards[i].Blockchain))
		if seen[chain] {
			return fmt.Errorf("%s.blockchain %s is configured twice", prefix, chain)
		}
		seen[chain] = true
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverGormPostgres:
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return errors.New("database.sqlite_path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not one of postgres, gorm-postgres, sqlite, memory", c.Database.Driver)
	}

	if c.Merge.DefaultSize < 1 {
		return errors.New("merge.default_size must be >= 1")
	}
	if c.Merge.MaxSize < c.Merge.DefaultSize {
		return fmt.Errorf("merge.max_size (%d) cannot be below merge.default_size (%d)", c.Merge.MaxSize, c.Merge.DefaultSize)
	}
	if c.Merge.StuckRetries < 0 {
		return errors.New("merge.stuck_retries must be >= 0")
	}

	if c.Aggregates.MaxAttempts < 1 {
		return errors.New("aggregates.max_attempts must be >= 1")
	}
	for name := range c.Aggregates.BidCurrencies {
		if !knownChain(name) {
			return fmt.Errorf("aggregates.bid_currencies: unknown blockchain %q", name)
		}
	}
	for name := range c.Aggregates.Origins {
		if !knownChain(name) {
			return fmt.Errorf("aggregates.origins: unknown blockchain %q", name)
		}
	}

	if c.Search.MaxAttempts < 1 {
		return errors.New("search.max_attempts must be >= 1")
	}

	for i, cur := range c.Rates.Currencies {
		if !knownChain(cur.Blockchain) {
			return fmt.Errorf("rates.currencies[%d].blockchain: unknown blockchain %q", i, cur.Blockchain)
		}
		if cur.Address == "" {
			return fmt.Errorf("rates.currencies[%d].address is required", i)
		}
	}
	if len(c.Rates.Currencies) > 0 && c.Rates.URL == "" {
		return errors.New("rates.url is required when rates.currencies is set")
	}

	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	if c.Consumer.Workers < 1 {
		return errors.New("consumer.workers must be >= 1")
	}
	if c.Reconcile.Concurrency < 1 {
		return errors.New("reconcile.concurrency must be >= 1")
	}
	if c.Reconcile.BatchSize < 1 {
		return errors.New("reconcile.batch_size must be >= 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

func (s *ShardConfig) validate(prefix string) error {
	if !knownChain(s.Blockchain) {
		return fmt.Errorf("%s.blockchain: unknown blockchain %q", prefix, s.Blockchain)
	}
	if s.RestURL == "" {
		return fmt.Errorf("%s.rest_url is required", prefix)
	}
	switch s.Dialect {
	case "", "continuation", "cursor":
	default:
		return fmt.Errorf("%s.dialect %q is not one of continuation, cursor", prefix, s.Dialect)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must be >= 0", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func knownChain(name string) bool {
	switch model.Blockchain(strings.ToUpper(name)) {
	case model.Ethereum, model.Polygon, model.Flow, model.Tezos, model.Solana:
		return true
	default:
		return false
	}
}

// Chain returns the normalized chain of s.
func (s ShardConfig) Chain() model.Blockchain {
	return model.Blockchain(strings.ToUpper(s.Blockchain))
}

// ChainLists converts a blockchain-keyed map from YAML into model keys.
func ChainLists(m map[string][]string) map[model.Blockchain][]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[model.Blockchain][]string, len(m))
	for k, v := range m {
		out[model.Blockchain(strings.ToUpper(k))] = v
	}
	return out
}
