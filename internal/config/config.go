// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML file of lifecycle settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/linepay-preapproval/internal/policy"
)

// Environment variables read by Load.
const (
	EnvChannelID       = "CHANNEL_ID"
	EnvChannelSecret   = "CHANNEL_SECRET"
	EnvSandboxMode     = "SANDBOX_MODE"
	EnvBaseURL         = "LINEPAY_BASE_URL"
	EnvTimeout         = "LINEPAY_TIMEOUT"
	EnvLogFile         = "LOG_FILE"
	EnvLogLevel        = "LOG_LEVEL"
	EnvMetricsAddr     = "METRICS_ADDR"
	EnvTraceExporter   = "TRACE_EXPORTER"
	EnvLifecycleConfig = "LIFECYCLE_CONFIG"
	EnvChargePolicy    = "CHARGE_POLICY"
	EnvContractDir     = "CONTRACT_DIR"
)

// Older deployments used these names; they are read when the primary
// variable is unset.
var legacyNames = map[string]string{
	EnvChannelID:     "LINE_CHANNEL_ID",
	EnvChannelSecret: "LINE_SECRET_KEY",
	EnvSandboxMode:   "LINE_SANDBOX",
}

var (
	ErrMissingSandboxMode = errors.New("config: SANDBOX_MODE is required")
	ErrInvalidSandboxMode = errors.New(`config: SANDBOX_MODE must be "true" or "false"`)
)

// Config is the full process configuration.
type Config struct {
	ChannelID     string `validate:"required"`
	ChannelSecret string `validate:"required"`
	Sandbox       bool
	BaseURL       string        `validate:"omitempty,url"`
	Timeout       time.Duration `validate:"gte=0"`
	LogFile       string        `validate:"required"`
	LogLevel      string        `validate:"oneof=debug info warn error"`
	MetricsAddr   string        `validate:"omitempty,hostname_port"`
	TraceExporter string        `validate:"omitempty,oneof=stdout otlp"`
	ChargePolicy  string
	ContractDir   string `validate:"omitempty,dir"`
	Lifecycle     Lifecycle
}

// Lifecycle holds the settings of a demo lifecycle run.
type Lifecycle struct {
	PollInterval    time.Duration   `yaml:"poll_interval" validate:"gt=0"`
	MaxPollAttempts uint            `yaml:"max_poll_attempts"`
	PollTimeout     time.Duration   `yaml:"poll_timeout" validate:"gte=0"`
	ProductID       string          `yaml:"product_id" validate:"required"`
	ProductName     string          `yaml:"product_name" validate:"required"`
	ImageURL        string          `yaml:"image_url" validate:"omitempty,url"`
	ChargeAmount    decimal.Decimal `yaml:"charge_amount"`
	ConfirmURL      string          `yaml:"confirm_url" validate:"required,url"`
	CancelURL       string          `yaml:"cancel_url" validate:"required,url"`
}

// DefaultLifecycle is the demo run: product 1, charged 50 THB, polled every
// 10 seconds.
func DefaultLifecycle() Lifecycle {
	return Lifecycle{
		PollInterval:    10 * time.Second,
		MaxPollAttempts: 90,
		PollTimeout:     15 * time.Minute,
		ProductID:       "1",
		ProductName:     "Sample product",
		ChargeAmount:    decimal.NewFromInt(50),
		ConfirmURL:      "https://nitro.co.th/",
		CancelURL:       "https://nitro.co.th/",
	}
}

// Load reads .env from the working directory when present and then builds
// the configuration from the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds the configuration using lookup instead of the process
// environment.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(name string) (string, bool) {
		if v, ok := lookup(name); ok {
			return v, true
		}
		if legacy, ok := legacyNames[name]; ok {
			return lookup(legacy)
		}
		return "", false
	}

	cfg := &Config{
		LogFile:   filepath.Join(os.TempDir(), "line.log"),
		LogLevel:  "debug",
		Lifecycle: DefaultLifecycle(),
	}
	cfg.ChannelID, _ = get(EnvChannelID)
	cfg.ChannelSecret, _ = get(EnvChannelSecret)

	raw, ok := get(EnvSandboxMode)
	if !ok {
		return nil, ErrMissingSandboxMode
	}
	sandbox, err := ParseSandboxMode(raw)
	if err != nil {
		return nil, err
	}
	cfg.Sandbox = sandbox

	cfg.BaseURL, _ = get(EnvBaseURL)
	if v, ok := get(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	if v, ok := get(EnvLogFile); ok && v != "" {
		cfg.LogFile = v
	}
	if v, ok := get(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.MetricsAddr, _ = get(EnvMetricsAddr)
	cfg.TraceExporter, _ = get(EnvTraceExporter)
	cfg.ChargePolicy, _ = get(EnvChargePolicy)
	cfg.ContractDir, _ = get(EnvContractDir)

	if path, ok := get(EnvLifecycleConfig); ok && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", EnvLifecycleConfig, err)
		}
		if err := DecodeLifecycle(raw, &cfg.Lifecycle); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseSandboxMode accepts "true" or "false" in any letter case.
func ParseSandboxMode(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w, got %q", ErrInvalidSandboxMode, raw)
	}
}

// DecodeLifecycle overlays YAML settings onto l. Keys absent from raw keep
// their current values.
func DecodeLifecycle(raw []byte, l *Lifecycle) error {
	if err := yaml.Unmarshal(raw, l); err != nil {
		return fmt.Errorf("config: decode lifecycle settings: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and returns the first violations found.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	if !c.Lifecycle.ChargeAmount.IsPositive() {
		return fmt.Errorf("config: charge amount must be positive, got %s", c.Lifecycle.ChargeAmount)
	}
	if _, err := policy.FromExpression(c.ChargePolicy); err != nil {
		return fmt.Errorf("config: %s: %w", EnvChargePolicy, err)
	}
	return nil
}
