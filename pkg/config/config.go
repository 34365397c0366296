// Package config loads the marketflow configuration: the collector
// capability table, budget tiers, and transport settings. Viper handles the
// YAML file plus MARKETFLOW_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marketflow/marketflow/pkg/domain"
	"github.com/marketflow/marketflow/pkg/ratelimit"
)

// Config is the root configuration.
type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	Development bool              `mapstructure:"development"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Defaults    BudgetConfig      `mapstructure:"defaults"`
	Collectors  []CollectorConfig `mapstructure:"collectors"`
}

// NATSConfig configures the optional result publisher.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Enabled       bool   `mapstructure:"enabled"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// BudgetConfig is a rate/quota tier, either the global default or a
// per-collector override.
type BudgetConfig struct {
	Window      time.Duration `mapstructure:"window"`
	QuotaLimit  int           `mapstructure:"quota_limit"`
	QuotaPeriod string        `mapstructure:"quota_period"`
}

// CollectorConfig describes one collector entry in the table.
type CollectorConfig struct {
	ID                 string        `mapstructure:"id"`
	Quadrant           string        `mapstructure:"quadrant"`
	UseCases           []string      `mapstructure:"use_cases"`
	CostPerRequest     float64       `mapstructure:"cost_per_request"`
	Protocol           string        `mapstructure:"protocol"`
	SupportsMCP        bool          `mapstructure:"supports_mcp"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second"`
	Reliability        int           `mapstructure:"reliability"`
	MaxCompanies       int           `mapstructure:"max_companies"`
	MCPToolCount       int           `mapstructure:"mcp_tool_count"`
	BaseURL            string        `mapstructure:"base_url"`
	Endpoint           string        `mapstructure:"endpoint"`
	APIKey             string        `mapstructure:"api_key"`
	UserAgent          string        `mapstructure:"user_agent"`
	Budget             *BudgetConfig `mapstructure:"budget"`
}

// Load reads configuration from the given file path. An empty path falls
// back to ./marketflow.yaml and $HOME/.marketflow/marketflow.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("marketflow")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.marketflow")
	}

	v.SetEnvPrefix("MARKETFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "marketflow.results")
	v.SetDefault("defaults.window", time.Minute)
	v.SetDefault("defaults.quota_period", "daily")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole table; collector entries must translate into
// valid capabilities.
func (c *Config) Validate() error {
	if len(c.Collectors) == 0 {
		return fmt.Errorf("config: at least one collector is required")
	}
	seen := make(map[string]struct{}, len(c.Collectors))
	for _, cc := range c.Collectors {
		if _, dup := seen[cc.ID]; dup {
			return fmt.Errorf("config: duplicate collector id %q", cc.ID)
		}
		seen[cc.ID] = struct{}{}
		if _, err := cc.Capability(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if _, err := ratelimit.ParsePeriod(c.Defaults.QuotaPeriod); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Capability translates a collector entry into the immutable capability.
func (cc CollectorConfig) Capability() (domain.CollectorCapability, error) {
	quadrant, err := domain.ParseQuadrant(cc.Quadrant)
	if err != nil {
		return domain.CollectorCapability{}, fmt.Errorf("collector %s: %w", cc.ID, err)
	}
	protocol, err := domain.ParseProtocol(cc.Protocol)
	if err != nil {
		return domain.CollectorCapability{}, fmt.Errorf("collector %s: %w", cc.ID, err)
	}

	useCases := make([]domain.UseCase, len(cc.UseCases))
	for i, uc := range cc.UseCases {
		useCases[i] = domain.UseCase(uc)
	}

	capability := domain.CollectorCapability{
		ID:                 cc.ID,
		Quadrant:           quadrant,
		PrimaryUseCases:    useCases,
		CostPerRequest:     cc.CostPerRequest,
		ProtocolPreference: protocol,
		SupportsMCP:        cc.SupportsMCP,
		RateLimitPerSecond: cc.RateLimitPerSecond,
		ReliabilityScore:   cc.Reliability,
		MaxCompanies:       cc.MaxCompanies,
		MCPToolCount:       cc.MCPToolCount,
	}
	if err := capability.Validate(); err != nil {
		return domain.CollectorCapability{}, err
	}
	return capability, nil
}

// BudgetSpec resolves the effective budget for a collector: the entry's
// override when present, the global defaults otherwise. The window call cap
// is the upstream per-second rate spread over the window.
func (cc CollectorConfig) BudgetSpec(defaults BudgetConfig) (ratelimit.BudgetSpec, error) {
	effective := defaults
	if cc.Budget != nil {
		if cc.Budget.Window > 0 {
			effective.Window = cc.Budget.Window
		}
		if cc.Budget.QuotaLimit > 0 {
			effective.QuotaLimit = cc.Budget.QuotaLimit
		}
		if cc.Budget.QuotaPeriod != "" {
			effective.QuotaPeriod = cc.Budget.QuotaPeriod
		}
	}
	if effective.Window <= 0 {
		effective.Window = time.Minute
	}
	period, err := ratelimit.ParsePeriod(effective.QuotaPeriod)
	if err != nil {
		return ratelimit.BudgetSpec{}, fmt.Errorf("collector %s: %w", cc.ID, err)
	}

	maxCalls := int(cc.RateLimitPerSecond * effective.Window.Seconds())
	if maxCalls < 1 {
		maxCalls = 1
	}
	return ratelimit.BudgetSpec{
		Window:      effective.Window,
		MaxCalls:    maxCalls,
		QuotaLimit:  effective.QuotaLimit,
		QuotaPeriod: period,
	}, nil
}
