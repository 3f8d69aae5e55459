package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TwilioConfig holds the SMS gateway credentials and sender identity.
// Credentials may also come from TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and
// TWILIO_PHONE_NUMBER, which override the file values.
type TwilioConfig struct {
	AccountSID  string `yaml:"accountSID" validate:"required_unless=MockSending true"`
	AuthToken   string `yaml:"authToken" validate:"required_unless=MockSending true"`
	FromNumber  string `yaml:"fromNumber" validate:"required_unless=MockSending true,omitempty,e164"`
	APIBaseURL  string `yaml:"apiBaseURL,omitempty"`
	MockSending bool   `yaml:"mockSending,omitempty"`
}

// AutoRenewConfig controls the nightly schedule health check
type AutoRenewConfig struct {
	Enabled        bool `yaml:"enabled"`
	ThresholdWeeks int  `yaml:"thresholdWeeks" validate:"omitempty,min=1"`
	RenewWeeks     int  `yaml:"renewWeeks" validate:"omitempty,min=1"`
}

// Config represents the application configuration. It is loaded and
// validated once at startup and treated as immutable afterwards.
type Config struct {
	DatabaseURL        string          `yaml:"databaseURL" validate:"required"`
	Timezone           string          `yaml:"timezone" validate:"required"`
	// SendHour and SendMinute are pointers so an explicit 0 in the file
	// is distinguishable from the key being absent
	SendHour           *int            `yaml:"sendHour" validate:"required,min=0,max=23"`
	SendMinute         *int            `yaml:"sendMinute" validate:"required,min=0,max=59"`
	Twilio             TwilioConfig    `yaml:"twilio"`
	AutoRenew          AutoRenewConfig `yaml:"autoRenew,omitempty"`
	EscalationContacts []string        `yaml:"escalationContacts,omitempty" validate:"dive,e164"`
	WeeklySummary      bool            `yaml:"weeklySummary,omitempty"`

	// location is resolved from Timezone during validation
	location *time.Location
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from oncall_config.yaml.
// It looks for the config file in the current directory first, then in the
// user's home directory. env selects a per-environment file when non-empty
// (oncall_config.<env>.yaml).
func Load(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct and resolves the timezone
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	return nil
}

// Location returns the resolved target timezone. Validate must have
// succeeded first.
func (c *Config) Location() *time.Location {
	return c.location
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v := os.Getenv("TWILIO_PHONE_NUMBER"); v != "" {
		cfg.Twilio.FromNumber = v
	}
	if v := os.Getenv("ONCALL_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Chicago"
	}
	if cfg.SendHour == nil {
		hour := 8
		cfg.SendHour = &hour
	}
	if cfg.SendMinute == nil {
		minute := 0
		cfg.SendMinute = &minute
	}
	if cfg.AutoRenew.Enabled {
		if cfg.AutoRenew.ThresholdWeeks == 0 {
			cfg.AutoRenew.ThresholdWeeks = 2
		}
		if cfg.AutoRenew.RenewWeeks == 0 {
			cfg.AutoRenew.RenewWeeks = 4
		}
	}
}

// findConfigFile searches for the config file in current directory and home directory
func findConfigFile(env string) (string, error) {
	configFileName := "oncall_config.yaml"
	if env != "" {
		configFileName = fmt.Sprintf("oncall_config.%s.yaml", env)
	}

	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", configFileName)
}
