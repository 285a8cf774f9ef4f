package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/etf-team/tariffbot/core/config"
	coredatabase "github.com/etf-team/tariffbot/core/database"
	"github.com/etf-team/tariffbot/internal/conversation"
	"github.com/etf-team/tariffbot/internal/reminder"
	"github.com/etf-team/tariffbot/internal/tariff"
)

// Session store backends.
const (
	SessionsMemory = "memory"
	SessionsRedis  = "redis"
)

// AssetsConfig holds Telegram file ids of the pictures and the example spreadsheet.
type AssetsConfig struct {
	HelloPhoto  string `yaml:"hello_photo" envconfig:"HELLO_PIC_FILE_ID"`
	SadPhoto    string `yaml:"sad_photo" envconfig:"SAD_PIC_FILE_ID"`
	HaPhoto     string `yaml:"ha_photo" envconfig:"HA_PIC_FILE_ID"`
	ExampleFile string `yaml:"example_file" envconfig:"TEST_FILE_PATH"`
}

// ConversationConfig selects flows and input limits.
type ConversationConfig struct {
	DocumentFlow     string        `yaml:"document_flow" envconfig:"CONVERSATION_DOCUMENT_FLOW"`
	ManualFlow       string        `yaml:"manual_flow" envconfig:"CONVERSATION_MANUAL_FLOW"`
	MaxInvalidInputs int           `yaml:"max_invalid_inputs"`
	MaxDocumentBytes int64         `yaml:"max_document_bytes"`
	ExampleDelay     time.Duration `yaml:"example_delay"`
}

// RedisConfig addresses the redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix"`
}

// SessionsConfig selects where conversation sessions live.
type SessionsConfig struct {
	Backend string `yaml:"backend" envconfig:"SESSIONS_BACKEND"`
	// TTL expires idle sessions; 0 keeps them until the flow ends.
	TTL           time.Duration `yaml:"ttl" envconfig:"SESSIONS_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// MetricsConfig enables the /metrics and /healthz listener.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// Config is the full bot configuration.
type Config struct {
	Core         coreconfig.Config   `yaml:",inline"`
	Database     coredatabase.Config `yaml:"database"`
	Tariff       tariff.Config       `yaml:"tariff"`
	Assets       AssetsConfig        `yaml:"assets"`
	Conversation ConversationConfig  `yaml:"conversation"`
	Sessions     SessionsConfig      `yaml:"sessions"`
	Reminder     reminder.Config     `yaml:"reminder"`
	Metrics      MetricsConfig       `yaml:"metrics"`
}

// CoreConfig exposes the embedded core section to the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Core
}

// LoadConfig reads path, overlays the environment and normalizes the result.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := coreconfig.LoadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Core); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	if err := c.Tariff.Normalize(); err != nil {
		return err
	}
	if err := c.Conversation.normalize(); err != nil {
		return err
	}
	if err := c.Sessions.normalize(); err != nil {
		return err
	}
	return c.Reminder.Normalize()
}

func (c *ConversationConfig) normalize() error {
	flows := conversation.DefaultFlows()
	c.DocumentFlow = strings.TrimSpace(c.DocumentFlow)
	if c.DocumentFlow == "" {
		c.DocumentFlow = conversation.FlowDocumentVolumes
	}
	if f, ok := flows[c.DocumentFlow]; !ok || !f.Document {
		return fmt.Errorf("invalid conversation.document_flow %q; allowed: %s, %s",
			c.DocumentFlow, conversation.FlowDocumentVolumes, conversation.FlowDocumentCases)
	}
	c.ManualFlow = strings.TrimSpace(c.ManualFlow)
	if c.ManualFlow == "" {
		c.ManualFlow = conversation.FlowManualVolume
	}
	if f, ok := flows[c.ManualFlow]; !ok || f.Document {
		return fmt.Errorf("invalid conversation.manual_flow %q; allowed: %s, %s",
			c.ManualFlow, conversation.FlowManualVolume, conversation.FlowManualPeak)
	}
	if c.MaxInvalidInputs < 0 {
		return fmt.Errorf("conversation.max_invalid_inputs must be >= 0")
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = 20 << 20
	}
	if c.ExampleDelay <= 0 {
		c.ExampleDelay = time.Second
	}
	return nil
}

func (s *SessionsConfig) normalize() error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case "":
		s.Backend = SessionsMemory
	case SessionsMemory:
	case SessionsRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("sessions.redis.addr is required when sessions.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid sessions.backend %q; allowed: memory, redis", s.Backend)
	}
	if s.TTL < 0 {
		return fmt.Errorf("sessions.ttl must be >= 0")
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = time.Minute
	}
	return nil
}
