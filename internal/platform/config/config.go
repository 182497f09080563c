// Package config loads the vault server configuration: a YAML file
// overlaid with VAULT_* environment variables, then defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "VAULT_"

// DefaultFallbackReply is shown when the tutor cannot answer.
const DefaultFallbackReply = "Sorry, I couldn't get an answer right now. Please try again in a little while!"

// Config holds the server's runtime configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Pet     PetConfig     `yaml:"pet" envPrefix:"PET_"`
	Tutor   TutorConfig   `yaml:"tutor" envPrefix:"TUTOR_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
	Tuning  TuningConfig  `yaml:"tuning" envPrefix:"TUNING_"`
}

type ServerConfig struct {
	ListenAddr       string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	DBPath           string        `yaml:"db_path" env:"DB_PATH"`
	Memory           bool          `yaml:"memory" env:"MEMORY"` // In-memory stores, nothing persisted
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins   []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type PetConfig struct {
	InitialHunger    int           `yaml:"initial_hunger" env:"INITIAL_HUNGER"`
	InitialHappiness int           `yaml:"initial_happiness" env:"INITIAL_HAPPINESS"`
	DecayInterval    time.Duration `yaml:"decay_interval" env:"DECAY_INTERVAL"`
	DecayAmount      int           `yaml:"decay_amount" env:"DECAY_AMOUNT"`
	GrowthInterval   time.Duration `yaml:"growth_interval" env:"GROWTH_INTERVAL"`
	GrowthPoints     int           `yaml:"growth_points" env:"GROWTH_POINTS"`
}

type TutorConfig struct {
	Provider          string        `yaml:"provider" env:"PROVIDER"` // gemini, openai or none
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	Model             string        `yaml:"model" env:"MODEL"`
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	DailyRequestLimit int           `yaml:"daily_request_limit" env:"DAILY_REQUEST_LIMIT"`
	HistoryTurns      int           `yaml:"history_turns" env:"HISTORY_TURNS"`
	FallbackReply     string        `yaml:"fallback_reply" env:"FALLBACK_REPLY"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

// TuningConfig holds channel buffers, pool sizes and rate limits. Profile
// picks the baseline; explicit values override it.
type TuningConfig struct {
	Profile              string        `yaml:"profile" env:"PROFILE"` // default, stress or low
	ClientSendBuffer     int           `yaml:"client_send_buffer" env:"CLIENT_SEND_BUFFER"`
	DBMaxOpenConns       int           `yaml:"db_max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns       int           `yaml:"db_max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	MaxMessagesPerSecond int           `yaml:"max_messages_per_second" env:"MAX_MESSAGES_PER_SECOND"`
	MaxClientsPerUser    int           `yaml:"max_clients_per_user" env:"MAX_CLIENTS_PER_USER"`
	EventPollInterval    time.Duration `yaml:"event_poll_interval" env:"EVENT_POLL_INTERVAL"`
	EventRetention       int           `yaml:"event_retention" env:"EVENT_RETENTION"` // events kept in memory
}

// Load reads an optional YAML file, overlays the environment, applies
// defaults, and validates.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "data/vault.db"
	}
	if c.Server.SnapshotInterval == 0 {
		c.Server.SnapshotInterval = 5 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Pet.DecayInterval == 0 {
		c.Pet.DecayInterval = 60 * time.Second
	}
	if c.Pet.DecayAmount == 0 {
		c.Pet.DecayAmount = 5
	}
	if c.Pet.GrowthInterval == 0 {
		c.Pet.GrowthInterval = 10 * time.Second
	}
	if c.Pet.GrowthPoints == 0 {
		c.Pet.GrowthPoints = 3
	}

	c.Tutor.Provider = strings.ToLower(strings.TrimSpace(c.Tutor.Provider))
	if c.Tutor.Provider == "" {
		c.Tutor.Provider = "none"
	}
	if c.Tutor.APIKey == "" {
		switch c.Tutor.Provider {
		case "gemini":
			c.Tutor.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			c.Tutor.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Tutor.Model == "" {
		switch c.Tutor.Provider {
		case "gemini":
			c.Tutor.Model = "gemini-2.5-flash"
		case "openai":
			c.Tutor.Model = "gpt-4o-mini"
		}
	}
	if c.Tutor.Timeout == 0 {
		c.Tutor.Timeout = 20 * time.Second
	}
	if c.Tutor.DailyRequestLimit == 0 {
		c.Tutor.DailyRequestLimit = 200
	}
	if c.Tutor.HistoryTurns == 0 {
		c.Tutor.HistoryTurns = 6
	}
	if c.Tutor.FallbackReply == "" {
		c.Tutor.FallbackReply = DefaultFallbackReply
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}

	c.Tuning.applyProfile()
}

// applyProfile fills unset tuning values from the named profile.
func (t *TuningConfig) applyProfile() {
	if t.Profile == "" {
		t.Profile = "default"
	}
	base := profile(t.Profile)
	if t.ClientSendBuffer == 0 {
		t.ClientSendBuffer = base.ClientSendBuffer
	}
	if t.DBMaxOpenConns == 0 {
		t.DBMaxOpenConns = base.DBMaxOpenConns
	}
	if t.DBMaxIdleConns == 0 {
		t.DBMaxIdleConns = base.DBMaxIdleConns
	}
	if t.MaxMessagesPerSecond == 0 {
		t.MaxMessagesPerSecond = base.MaxMessagesPerSecond
	}
	if t.MaxClientsPerUser == 0 {
		t.MaxClientsPerUser = base.MaxClientsPerUser
	}
	if t.EventPollInterval == 0 {
		t.EventPollInterval = base.EventPollInterval
	}
	if t.EventRetention == 0 {
		t.EventRetention = base.EventRetention
	}
}

func profile(name string) TuningConfig {
	numCPU := runtime.NumCPU()
	switch name {
	case "stress":
		return TuningConfig{
			ClientSendBuffer:     128,
			DBMaxOpenConns:       numCPU * 8,
			DBMaxIdleConns:       numCPU * 4,
			MaxMessagesPerSecond: 500,
			MaxClientsPerUser:    50,
			EventPollInterval:    50 * time.Millisecond,
			EventRetention:       50000,
		}
	case "low":
		return TuningConfig{
			ClientSendBuffer:     8,
			DBMaxOpenConns:       5,
			DBMaxIdleConns:       2,
			MaxMessagesPerSecond: 10,
			MaxClientsPerUser:    3,
			EventPollInterval:    250 * time.Millisecond,
			EventRetention:       2000,
		}
	default:
		return TuningConfig{
			ClientSendBuffer:     64,
			DBMaxOpenConns:       numCPU * 4,
			DBMaxIdleConns:       numCPU * 2,
			MaxMessagesPerSecond: 20,
			MaxClientsPerUser:    8,
			EventPollInterval:    100 * time.Millisecond,
			EventRetention:       10000,
		}
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.Pet.InitialHunger < 0 || c.Pet.InitialHunger > 100 {
		problems = append(problems, "pet.initial_hunger must be within 0..100")
	}
	if c.Pet.InitialHappiness < 0 || c.Pet.InitialHappiness > 100 {
		problems = append(problems, "pet.initial_happiness must be within 0..100")
	}
	if c.Pet.DecayInterval < 0 || c.Pet.GrowthInterval < 0 {
		problems = append(problems, "pet intervals must be positive")
	}
	if c.Pet.DecayInterval == c.Pet.GrowthInterval {
		problems = append(problems, "pet.decay_interval and pet.growth_interval must differ")
	}
	if c.Pet.DecayAmount < 0 || c.Pet.GrowthPoints < 0 {
		problems = append(problems, "pet amounts must not be negative")
	}

	switch c.Tutor.Provider {
	case "none":
	case "gemini", "openai":
		if c.Tutor.APIKey == "" {
			problems = append(problems, "tutor.api_key is required for provider "+c.Tutor.Provider)
		}
	default:
		problems = append(problems, fmt.Sprintf("tutor.provider %q is not one of gemini, openai, none", c.Tutor.Provider))
	}
	if c.Tutor.DailyRequestLimit < 0 {
		problems = append(problems, "tutor.daily_request_limit must not be negative")
	}

	switch c.Tuning.Profile {
	case "default", "stress", "low":
	default:
		problems = append(problems, fmt.Sprintf("tuning.profile %q is not one of default, stress, low", c.Tuning.Profile))
	}
	if c.Tuning.EventRetention < 0 {
		problems = append(problems, "tuning.event_retention must not be negative")
	}

	if !c.Server.Memory && c.Server.DBPath == "" {
		problems = append(problems, "server.db_path is required unless server.memory is set")
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}
