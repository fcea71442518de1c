// Package config handles Hearth configuration loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/hearth/internal/email"
)

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given: ./hearth.yaml, ~/.config/hearth/config.yaml,
// /etc/hearth/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"hearth.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hearth", "config.yaml"))
	}

	return append(paths, "/etc/hearth/config.yaml")
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing entry of DefaultSearchPaths is returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Hearth configuration.
type Config struct {
	Listen       ListenConfig       `yaml:"listen"`
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Calendar     CalendarConfig     `yaml:"calendar"`
	Email        email.Config       `yaml:"email"`
	Lighting     LightingConfig     `yaml:"lighting"`
	MQTT         MQTTConfig         `yaml:"mqtt"`

	// Timezone is an IANA zone name used to stamp user turns and to
	// interpret wall-clock alarm times. Default: the host's local zone.
	Timezone string `yaml:"timezone"`

	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
}

// ListenConfig defines the HTTP and WebSocket server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig selects and configures the model client.
type LLMConfig struct {
	// Provider is "openai" for any OpenAI-compatible endpoint (DeepSeek,
	// OpenAI, vLLM) or "ollama" for a local Ollama server.
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Conversation modes.
const (
	ConversationShared     = "shared"
	ConversationPerSession = "per_session"
)

// ConversationConfig chooses between one household transcript shared by
// every connection and one transcript per connection.
type ConversationConfig struct {
	Mode     string `yaml:"mode"`
	SharedID string `yaml:"shared_id"`
}

// CalendarConfig holds CalDAV connection settings.
type CalendarConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Calendar is the path or display name of the calendar to use.
	// Empty selects the first calendar in the user's home set.
	Calendar string `yaml:"calendar"`
}

// Configured reports whether a CalDAV endpoint is set.
func (c CalendarConfig) Configured() bool {
	return c.URL != ""
}

// Lighting backends.
const (
	LightingHue           = "hue"
	LightingHomeAssistant = "homeassistant"
)

// LightingConfig selects the lighting backend.
type LightingConfig struct {
	Backend       string              `yaml:"backend"`
	Hue           HueConfig           `yaml:"hue"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
}

// HueConfig holds Philips Hue bridge settings. Username is the bridge
// application key returned when linking.
type HueConfig struct {
	BridgeIP     string `yaml:"bridge_ip"`
	Username     string `yaml:"username"`
	DiscoveryURL string `yaml:"discovery_url"`
}

// HomeAssistantConfig defines HA connection settings.
type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Configured reports whether the selected backend has enough settings to
// make requests.
func (c LightingConfig) Configured() bool {
	switch c.Backend {
	case LightingHomeAssistant:
		return c.HomeAssistant.URL != "" && c.HomeAssistant.Token != ""
	default:
		return c.Hue.BridgeIP != "" && c.Hue.Username != ""
	}
}

// MQTTConfig configures the alarm announcer.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. mqtt://broker.local:1883 or mqtts://...
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`

	// DiscoveryPrefix is the Home Assistant MQTT discovery prefix. The
	// announcer registers a "last alarm" sensor under it.
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// Configured reports whether a broker is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file, expanding ${VAR} references
// from the environment, then applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no
// providers configured.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 3000
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.BaseURL == "" {
		switch c.LLM.Provider {
		case ProviderOllama:
			c.LLM.BaseURL = "http://localhost:11434"
		default:
			c.LLM.BaseURL = "https://api.deepseek.com"
		}
	}
	if c.LLM.Model == "" && c.LLM.Provider == ProviderOpenAI {
		c.LLM.Model = "deepseek-chat"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Conversation.Mode == "" {
		c.Conversation.Mode = ConversationShared
	}
	if c.Conversation.SharedID == "" {
		c.Conversation.SharedID = "household"
	}
	if c.Lighting.Backend == "" {
		c.Lighting.Backend = LightingHue
	}
	if c.Lighting.Hue.DiscoveryURL == "" {
		c.Lighting.Hue.DiscoveryURL = "https://discovery.meethue.com"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "hearth"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "hearth"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	c.Email.ApplyDefaults()
}

// Validate checks the configuration for internal consistency and
// returns the first problem found.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("llm.provider %q is not supported (valid: openai, ollama)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	switch c.Conversation.Mode {
	case ConversationShared, ConversationPerSession:
	default:
		return fmt.Errorf("conversation.mode %q is not supported (valid: shared, per_session)", c.Conversation.Mode)
	}
	switch c.Lighting.Backend {
	case LightingHue, LightingHomeAssistant:
	default:
		return fmt.Errorf("lighting.backend %q is not supported (valid: hue, homeassistant)", c.Lighting.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.MQTT.Configured() {
		if _, err := url.Parse(c.MQTT.Broker); err != nil {
			return fmt.Errorf("mqtt.broker: %w", err)
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q is not supported (valid: text, json)", c.LogFormat)
	}
	return c.Email.Validate()
}

// Location resolves Timezone. An empty value is the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DatabasePath is the journal database location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "hearth.db")
}
