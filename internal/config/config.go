package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Social   SocialConfig   `yaml:"social"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Heist    HeistConfig    `yaml:"heist"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig holds Kafka connection configuration for the point event feed
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// SocialConfig holds the friendship oracle endpoint configuration. When
// BaseURL is empty a static oracle with no friendships is used.
type SocialConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RefreshConfig holds the snapshot refresh worker configuration
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
	Periods  []string      `yaml:"periods"`
}

// RankingConfig holds leaderboard aggregation configuration
type RankingConfig struct {
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	DefaultLimit int           `yaml:"default_limit"`
	MaxLimit     int           `yaml:"max_limit"`
}

// HeistConfig holds the heist policy constants. The transfer and
// consistency guarantees hold for any values chosen here.
type HeistConfig struct {
	StealPercent  int           `yaml:"steal_percent"`
	Cooldown      time.Duration `yaml:"cooldown"`
	RevengeWindow time.Duration `yaml:"revenge_window"`
	HammerUses    int           `yaml:"hammer_uses"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "point-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "points-economy"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	// Social defaults
	if c.Social.Timeout == 0 {
		c.Social.Timeout = 2 * time.Second
	}

	// Refresh defaults
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = 5 * time.Minute
	}
	if len(c.Refresh.Periods) == 0 {
		c.Refresh.Periods = []string{"day", "week", "month", "all"}
	}

	// Ranking defaults
	if c.Ranking.CacheTTL == 0 {
		c.Ranking.CacheTTL = 2 * time.Minute
	}
	if c.Ranking.DefaultLimit == 0 {
		c.Ranking.DefaultLimit = 100
	}
	if c.Ranking.MaxLimit == 0 {
		c.Ranking.MaxLimit = 1000
	}

	// Heist policy defaults
	if c.Heist.StealPercent == 0 {
		c.Heist.StealPercent = 20
	}
	if c.Heist.Cooldown == 0 {
		c.Heist.Cooldown = 24 * time.Hour
	}
	if c.Heist.RevengeWindow == 0 {
		c.Heist.RevengeWindow = 2 * time.Hour
	}
	if c.Heist.HammerUses == 0 {
		c.Heist.HammerUses = 1
	}
	if c.Heist.MaxRetries == 0 {
		c.Heist.MaxRetries = 3
	}
	if c.Heist.RetryBackoff == 0 {
		c.Heist.RetryBackoff = 50 * time.Millisecond
	}
}

// validate rejects policy values that would break the transfer invariants.
func (c *Config) validate() error {
	if c.Heist.StealPercent < 1 || c.Heist.StealPercent > 100 {
		return fmt.Errorf("heist.steal_percent must be between 1 and 100, got %d", c.Heist.StealPercent)
	}
	if c.Heist.HammerUses < 1 {
		return fmt.Errorf("heist.hammer_uses must be at least 1, got %d", c.Heist.HammerUses)
	}
	return nil
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Refresh.Enabled = true
	return cfg
}
