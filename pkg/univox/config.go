package univox

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	VADBackendSilero = "silero"
	VADBackendCobra  = "cobra"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	LogFormat   string          `mapstructure:"log_format"`
	SampleRate  int             `mapstructure:"sample_rate"`
	Privacy     PrivacyConfig   `mapstructure:"privacy"`
	Deepgram    DeepgramConfig  `mapstructure:"deepgram"`
	VAD         VADConfig       `mapstructure:"vad"`
	Transport   TransportConfig `mapstructure:"transport"`
	Status      StatusConfig    `mapstructure:"status"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type DeepgramConfig struct {
	APIKey   string         `mapstructure:"api_key"`
	BaseURL  string         `mapstructure:"base_url"`
	Model    string         `mapstructure:"model"`
	Language string         `mapstructure:"language"`
	Settings map[string]any `mapstructure:"settings"`
}

type VADConfig struct {
	Backend        string `mapstructure:"backend"`
	CobraAccessKey string `mapstructure:"cobra_access_key"`
}

type TransportConfig struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type StatusConfig struct {
	DelayMS int `mapstructure:"delay_ms"`
}

// LoadConfig reads the optional YAML file at path and overlays environment
// bindings. An empty path yields a config from defaults and environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("privacy.redact_pii", false)
	v.SetDefault("deepgram.model", "nova-3-general")
	v.SetDefault("deepgram.language", "en")
	v.SetDefault("vad.backend", VADBackendSilero)
	v.SetDefault("transport.server_addr", ":8080")
	v.SetDefault("transport.ws_path", "/ws")
	v.SetDefault("status.delay_ms", 2000)

	_ = v.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY")
	_ = v.BindEnv("vad.cobra_access_key", "PICOVOICE_ACCESS_KEY")
	_ = v.BindEnv("vad.backend", "VAD_BACKEND")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Deepgram.APIKey) == "" {
		return fmt.Errorf("deepgram.api_key is required")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.VAD.Backend)) {
	case "", VADBackendSilero, VADBackendCobra:
	default:
		return fmt.Errorf("vad.backend must be %q or %q", VADBackendSilero, VADBackendCobra)
	}
	return nil
}

// VADBackendOrDefault returns the configured backend normalized to lower
// case, defaulting to silero.
func (c *Config) VADBackendOrDefault() string {
	backend := strings.ToLower(strings.TrimSpace(c.VAD.Backend))
	if backend == "" {
		return VADBackendSilero
	}
	return backend
}

func expandEnvStrings(cfg *Config) {
	cfg.Deepgram.APIKey = os.ExpandEnv(cfg.Deepgram.APIKey)
	cfg.Deepgram.BaseURL = os.ExpandEnv(cfg.Deepgram.BaseURL)
	cfg.VAD.CobraAccessKey = os.ExpandEnv(cfg.VAD.CobraAccessKey)
	cfg.Deepgram.Settings = expandSettings(cfg.Deepgram.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}
