package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	envConfigPath  = "CHATFLOW_CONFIG"
	envRedisAddr   = "CHATFLOW_REDIS_ADDR"
	envHistoryKey  = "CHATFLOW_HISTORY_KEY"
	envFlowPath    = "CHATFLOW_FLOW"
	envSpeechVoice = "CHATFLOW_SPEECH_VOICES"
)

// ErrNotFound reports that no config file exists in the default locations.
var ErrNotFound = errors.New("chatflow.json not found")

// Config is the root runtime configuration loaded from chatflow.json.
type Config struct {
	Session       SessionConfig       `json:"session"`
	Toast         ToastConfig         `json:"toast"`
	History       HistoryConfig       `json:"history"`
	Storage       StorageConfig       `json:"storage"`
	Stream        StreamConfig        `json:"stream"`
	Events        EventsConfig        `json:"events,omitempty"`
	Speech        SpeechConfig        `json:"speech"`
	Notifications NotificationsConfig `json:"notifications"`
	Provider      ProviderConfig      `json:"provider"`
	Flow          FlowConfig          `json:"flow"`
	Logging       LoggingConfig       `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// SessionConfig describes how a chat session starts and guards its input.
type SessionConfig struct {
	ID        string `json:"id"`
	EntryStep string `json:"entry_step"`
	// BlockSpam disables input while the next step is being prepared.
	BlockSpam bool `json:"block_spam"`
	Embedded  bool `json:"embedded"`
	StartOpen bool `json:"start_open"`
}

// ToastConfig bounds the toast collection.
type ToastConfig struct {
	MaxCount         int  `json:"max_count"`
	ForbidOnMax      bool `json:"forbid_on_max"`
	DefaultTimeoutMS int  `json:"default_timeout_ms"`
}

// HistoryConfig controls persisted transcript capping.
type HistoryConfig struct {
	Disabled     bool   `json:"disabled"`
	MaxEntries   int    `json:"max_entries"`
	StorageKey   string `json:"storage_key"`
	BoundaryText string `json:"boundary_text"`
	AutoLoad     bool   `json:"auto_load"`
}

// StorageConfig selects the key-value backend used by the history store.
type StorageConfig struct {
	Driver string      `json:"driver"`
	Redis  RedisConfig `json:"redis"`
	Bolt   BoltConfig  `json:"bolt"`
}

// RedisConfig configures the redis storage driver.
type RedisConfig struct {
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	KeyPrefix  string `json:"key_prefix"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// BoltConfig configures the bbolt storage driver.
type BoltConfig struct {
	Path   string `json:"path"`
	Bucket string `json:"bucket"`
}

// StreamConfig tunes message streaming.
type StreamConfig struct {
	IntervalMS        int  `json:"interval_ms"`
	RetryAttempts     int  `json:"retry_attempts"`
	RetryDelayMS      int  `json:"retry_delay_ms"`
	SimulateBotStream bool `json:"simulate_bot_stream"`
}

// EventsConfig enables or disables individual event types. Unlisted types stay enabled.
type EventsConfig map[string]bool

// SpeechConfig configures the speech output collaborator.
type SpeechConfig struct {
	Enabled bool     `json:"enabled"`
	Command string   `json:"command"`
	Locale  string   `json:"locale"`
	Voices  []string `json:"voices"`
	Rate    float64  `json:"rate"`
	Volume  float64  `json:"volume"`
}

// NotificationsConfig configures the notification sound collaborator.
type NotificationsConfig struct {
	Enabled bool `json:"enabled"`
}

// ProviderConfig selects where LLM-backed steps get their replies.
type ProviderConfig struct {
	Name   string               `json:"name"`
	Model  string               `json:"model"`
	OpenAI OpenAIProviderConfig `json:"openai"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	BaseURL               string `json:"base_url"`
	APIKeyEnv             string `json:"api_key_env"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// FlowConfig points at the YAML step table.
type FlowConfig struct {
	Path string `json:"path"`
}

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig resolves chatflow.json, unmarshals it, and applies defaults and environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadOrDefault is LoadConfig, falling back to defaults plus environment overrides
// when no config file exists in the default locations.
func LoadOrDefault() (*Config, error) {
	cfg, err := LoadConfig()
	if errors.Is(err, ErrNotFound) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

// LoadFile reads one config file.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Session.ID) == "" {
		cfg.Session.ID = "local"
	}
	if strings.TrimSpace(cfg.Session.EntryStep) == "" {
		cfg.Session.EntryStep = "start"
	}
	if cfg.Toast.MaxCount <= 0 {
		cfg.Toast.MaxCount = 3
	}
	if cfg.History.MaxEntries <= 0 {
		cfg.History.MaxEntries = 30
	}
	if strings.TrimSpace(cfg.History.StorageKey) == "" {
		cfg.History.StorageKey = "chatflow_history"
	}
	if cfg.History.BoundaryText == "" {
		cfg.History.BoundaryText = "----- Previous Chat History -----"
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.Bolt.Bucket == "" {
		cfg.Storage.Bolt.Bucket = "chatflow"
	}
	if cfg.Stream.IntervalMS <= 0 {
		cfg.Stream.IntervalMS = 30
	}
	if cfg.Stream.RetryAttempts <= 0 {
		cfg.Stream.RetryAttempts = 3
	}
	if cfg.Stream.RetryDelayMS <= 0 {
		cfg.Stream.RetryDelayMS = 10
	}
	if cfg.Speech.Locale == "" {
		cfg.Speech.Locale = "en-US"
	}
	if cfg.Speech.Rate <= 0 {
		cfg.Speech.Rate = 1
	}
	if cfg.Speech.Volume <= 0 {
		cfg.Speech.Volume = 1
	}
	if strings.TrimSpace(cfg.Provider.Name) == "" {
		cfg.Provider.Name = "echo"
	}
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if addr := strings.TrimSpace(os.Getenv(envRedisAddr)); addr != "" {
		cfg.Storage.Redis.Addr = addr
		cfg.Storage.Driver = "redis"
	}

	if key := strings.TrimSpace(os.Getenv(envHistoryKey)); key != "" {
		cfg.History.StorageKey = key
	}

	if path := strings.TrimSpace(os.Getenv(envFlowPath)); path != "" {
		cfg.Flow.Path = path
	}

	if rawVoices := strings.TrimSpace(os.Getenv(envSpeechVoice)); rawVoices != "" {
		cfg.Speech.Voices = parseCSV(rawVoices)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is CHATFLOW_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "chatflow.json"),
		filepath.Join(cwd, "config", "chatflow.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s and %s)", ErrNotFound, candidates[0], candidates[1])
}

// DefaultTimeout returns the toast timeout applied when a caller passes none.
func (c ToastConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}

func (c StreamConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c StreamConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Enabled reports whether an event type named name should be dispatched.
func (c EventsConfig) Enabled(name string) bool {
	on, ok := c[name]
	return !ok || on
}

// String renders the storage selection for logs.
func (c StorageConfig) String() string {
	switch c.Driver {
	case "redis":
		return "redis://" + c.Redis.Addr + "/" + strconv.Itoa(c.Redis.DB)
	case "bolt":
		return "bolt://" + c.Bolt.Path
	default:
		return c.Driver
	}
}
