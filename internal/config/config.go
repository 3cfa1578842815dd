package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Fields are populated from a YAML file and
// then overridden by GAVEL_* / DB_* environment variables.
type Config struct {
	Auction  AuctionConfig  `yaml:"auction"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	LogLevel string         `yaml:"log_level"`
}

// AuctionConfig holds the tunable bidding rules. All monetary values are
// whole currency units.
type AuctionConfig struct {
	// RoundDurationSec is the countdown each accepted bid restarts.
	RoundDurationSec int `yaml:"round_duration_sec" json:"round_duration_sec"`
	// BreakDurationSec is the pause between rounds in timed mode.
	BreakDurationSec int `yaml:"break_duration_sec" json:"break_duration_sec"`
	// GraceWindowSec is how long a manual final call stays open for a
	// last bid before the round closes.
	GraceWindowSec int `yaml:"grace_window_sec" json:"grace_window_sec"`
	// IncrementStep is the minimum legal raise over the current high bid.
	IncrementStep int64 `yaml:"increment_step" json:"increment_step"`
	// JumpThreshold is the price at which free jumps become legal. Below
	// it a bid must raise by exactly IncrementStep.
	JumpThreshold int64 `yaml:"jump_threshold" json:"jump_threshold"`
	// MaxStraightIncrement caps a "max" shorthand bid at the current high
	// bid plus this amount.
	MaxStraightIncrement int64 `yaml:"max_straight_increment" json:"max_straight_increment"`
	// DefaultBalance is the starting balance for new bidder accounts.
	DefaultBalance int64 `yaml:"default_balance" json:"default_balance"`
	// Mode selects TIMED or MANUAL_CALL round closing.
	Mode string `yaml:"mode" json:"mode"`
	// StuckRoundCeilingSec force-finalizes a round active longer than this.
	StuckRoundCeilingSec int `yaml:"stuck_round_ceiling_sec" json:"stuck_round_ceiling_sec"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN returns the Postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the round snapshot cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLSec   int    `yaml:"ttl_sec"`
}

// NATSConfig holds the event bus connection settings.
type NATSConfig struct {
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// GatewayConfig holds the HTTP/WebSocket surface settings.
type GatewayConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration the original deployment ran with.
func Default() Config {
	return Config{
		Auction: AuctionConfig{
			RoundDurationSec:     60,
			BreakDurationSec:     15,
			GraceWindowSec:       5,
			IncrementStep:        1_000_000,
			JumpThreshold:        20_000_000,
			MaxStraightIncrement: 20_000_000,
			DefaultBalance:       200_000_000,
			Mode:                 "TIMED",
			StuckRoundCeilingSec: 600,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "gavel",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			TTLSec: 300,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			StreamName:    "AUCTION_EVENTS",
			SubjectPrefix: "auction.events",
		},
		Gateway: GatewayConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (if it exists) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Auction.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Gateway.Addr = getEnv("GAVEL_GATEWAY_ADDR", c.Gateway.Addr)
	c.LogLevel = getEnv("GAVEL_LOG_LEVEL", c.LogLevel)
}

// Validate rejects auction settings a running session could not honor.
func (a AuctionConfig) Validate() error {
	if a.RoundDurationSec < 10 || a.RoundDurationSec > 600 {
		return fmt.Errorf("round_duration_sec %d out of range [10,600]", a.RoundDurationSec)
	}
	if a.IncrementStep <= 0 {
		return fmt.Errorf("increment_step must be positive, got %d", a.IncrementStep)
	}
	if a.JumpThreshold < 0 || a.MaxStraightIncrement <= 0 {
		return fmt.Errorf("invalid bid tier settings: threshold=%d max_straight=%d", a.JumpThreshold, a.MaxStraightIncrement)
	}
	if a.Mode != "TIMED" && a.Mode != "MANUAL_CALL" {
		return fmt.Errorf("mode must be TIMED or MANUAL_CALL, got %q", a.Mode)
	}
	return nil
}

// RoundDuration returns the countdown as a time.Duration.
func (a AuctionConfig) RoundDuration() time.Duration {
	return time.Duration(a.RoundDurationSec) * time.Second
}

// BreakDuration returns the inter-round break as a time.Duration.
func (a AuctionConfig) BreakDuration() time.Duration {
	return time.Duration(a.BreakDurationSec) * time.Second
}

// GraceWindow returns the final-call grace window as a time.Duration.
func (a AuctionConfig) GraceWindow() time.Duration {
	return time.Duration(a.GraceWindowSec) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
