package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cypherlabdev/market-signals-service/internal/models"
)

// Config holds all configuration for market-signals-service
type Config struct {
	Server    ServerConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Detection DetectionConfig
	Regime    RegimeConfig
	Closing   ClosingConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string // Topic to consume from (quote_batches)
	GroupID string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig holds relational store configuration
type StorageConfig struct {
	Path string // SQLite file path, ":memory:" for tests
}

// DetectionConfig holds thresholds for the move ledger, dislocation detector
// and propagation engine
type DetectionConfig struct {
	MinBooks               int           // consensus floor for dislocation detection
	LineDeviationThreshold float64       // points, spreads/totals
	ProbDeviationThreshold float64       // implied probability, h2h
	CooldownTTL            time.Duration // dislocation dedupe window
	PropagationWindow      time.Duration
	CycleLockTTL           time.Duration
	VenueTiers             map[string]string // venue -> sharp/retail/offshore
}

// RegimeConfig holds regime detector configuration. HMM emission and
// transition parameters are fixed constants in pkg/hmm, not learned and not
// user-tunable.
type RegimeConfig struct {
	Enabled      bool
	MinSnapshots int
	Lookback     time.Duration
	ModelVersion string
}

// ClosingConfig holds closing-consensus / CLV settlement configuration
type ClosingConfig struct {
	BufferMinutes int           // wait after commence before freezing
	Horizon       time.Duration // how far back to consider commenced events
	Interval      time.Duration // settlement cadence
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "quote_batches")
	v.SetDefault("kafka.group_id", "market-signals")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.path", "data/signals.db")

	v.SetDefault("detection.min_books", 5)
	v.SetDefault("detection.line_deviation_threshold", 0.5)
	v.SetDefault("detection.prob_deviation_threshold", 0.04)
	v.SetDefault("detection.cooldown_ttl", 10*time.Minute)
	v.SetDefault("detection.propagation_window", 5*time.Minute)
	v.SetDefault("detection.cycle_lock_ttl", 55*time.Second)
	v.SetDefault("detection.venue_tiers", defaultVenueTiers())

	v.SetDefault("regime.enabled", true)
	v.SetDefault("regime.min_snapshots", 3)
	v.SetDefault("regime.lookback", 30*time.Minute)
	v.SetDefault("regime.model_version", "hmm-2state-v1")

	v.SetDefault("closing.buffer_minutes", 30)
	v.SetDefault("closing.horizon", 48*time.Hour)
	v.SetDefault("closing.interval", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvPrefix("MARKET_SIGNALS")
	v.AutomaticEnv()
	// Replace . with _ for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unmarshal to struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// TierFor maps a venue key to its tier; unknown venues are treated as retail
func (c *DetectionConfig) TierFor(venue string) models.VenueTier {
	switch c.VenueTiers[venue] {
	case string(models.TierSharp):
		return models.TierSharp
	case string(models.TierOffshore):
		return models.TierOffshore
	default:
		return models.TierRetail
	}
}

// defaultVenueTiers is the fixed venue classification table
func defaultVenueTiers() map[string]string {
	return map[string]string{
		"pinnacle":    "sharp",
		"circasports": "sharp",
		"bookmaker":   "sharp",
		"draftkings":  "retail",
		"fanduel":     "retail",
		"betmgm":      "retail",
		"caesars":     "retail",
		"espnbet":     "retail",
		"bovada":      "offshore",
		"betonlineag": "offshore",
		"mybookieag":  "offshore",
		"lowvig":      "offshore",
	}
}
