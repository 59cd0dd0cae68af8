// Package config loads the gateway's layered configuration: compiled-in
// defaults, an optional config.yaml, an optional .env file, and environment
// variables, in ascending priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Store      CredentialStoreConfig `mapstructure:"credential_store"`
	Timing     TimingConfig     `mapstructure:"timing"`
	Tool       ToolConfig       `mapstructure:"tool"`
	Reasoning  ReasoningConfig  `mapstructure:"reasoning"`
	Rate       RateConfig       `mapstructure:"rate"`
	Truncation TruncationConfig `mapstructure:"truncation"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// AuthType selects the refresh protocol.
type AuthType string

const (
	AuthTypeDesktop AuthType = "desktop"
	AuthTypeOIDC    AuthType = "oidc"
)

// AuthConfig configures client auth and upstream credential refresh.
type AuthConfig struct {
	ProxyAPIKey   string   `mapstructure:"proxy_api_key"`
	RefreshTokens []string `mapstructure:"refresh_tokens"` // >1 entry => multi-token mode
	ProfileArn    string   `mapstructure:"profile_arn"`
	Region        string   `mapstructure:"region"`
	SSORegion     string   `mapstructure:"sso_region"` // falls back to Region when empty
	Type          AuthType `mapstructure:"type"`
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
}

// EffectiveSSORegion returns SSORegion, falling back to Region.
func (a AuthConfig) EffectiveSSORegion() string {
	if a.SSORegion != "" {
		return a.SSORegion
	}
	return a.Region
}

// CredentialStoreConfig selects and configures the credential backend.
type CredentialStoreConfig struct {
	Backend string `mapstructure:"backend"` // json, sql
	Path    string `mapstructure:"path"`    // json file path (the sql backend uses DSN)
	DBType  string `mapstructure:"db_type"` // sqlite, postgres
	DSN     string `mapstructure:"dsn"`
}

// TimingConfig controls refresh cadence.
type TimingConfig struct {
	RefreshThreshold        time.Duration `mapstructure:"refresh_threshold"`
	BackgroundRefreshInterval time.Duration `mapstructure:"background_refresh_interval"`
}

// ToolConfig controls tool-schema processing.
type ToolConfig struct {
	DescriptionMaxLength int `mapstructure:"description_max_length"`
}

// ReasoningConfig controls the optional thinking-tag injection.
type ReasoningConfig struct {
	FakeReasoningEnabled   bool `mapstructure:"fake_reasoning_enabled"`
	FakeReasoningMaxTokens int  `mapstructure:"fake_reasoning_max_tokens"`
}

// RateConfig is informational only; enforcement is an explicit non-goal.
type RateConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// TruncationConfig controls the truncation-recovery caches. CacheTTL and
// CacheMaxEntries size the cache. RecoveryEnabled is loaded (default true,
// TRUNCATION_RECOVERY) but no component reads it: recovery always runs.
type TruncationConfig struct {
	RecoveryEnabled bool          `mapstructure:"recovery_enabled"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load resolves Config from defaults, optional config.yaml (global then
// local, merged), an optional .env file, and GATEWAY_-prefixed environment
// variables, in ascending priority — mirroring the teacher's layered
// viper setup.
func Load() (*Config, error) {
	_ = godotenv.Load() // best effort; absence is not an error

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".gateway")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("auth.type", string(AuthTypeDesktop))
	v.SetDefault("auth.region", "us-east-1")

	v.SetDefault("credential_store.backend", "json")
	v.SetDefault("credential_store.path", "credentials.json")
	v.SetDefault("credential_store.db_type", "sqlite")

	v.SetDefault("timing.refresh_threshold", "10m")
	v.SetDefault("timing.background_refresh_interval", "5m")

	v.SetDefault("tool.description_max_length", 4000)

	v.SetDefault("reasoning.fake_reasoning_enabled", false)
	v.SetDefault("reasoning.fake_reasoning_max_tokens", 2000)

	v.SetDefault("rate.requests_per_minute", 60)

	v.SetDefault("truncation.recovery_enabled", true)
	v.SetDefault("truncation.cache_ttl", "10m")
	v.SetDefault("truncation.cache_max_entries", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")
}

// bindEnv maps spec.md §6's enumerated environment knobs onto config keys.
// These knobs carry no GATEWAY_ prefix, so the prefixed automatic-env
// lookup never sees them without an explicit bind.
func bindEnv(v *viper.Viper) {
	binds := map[string]string{
		"auth.proxy_api_key":                 "PROXY_API_KEY",
		"auth.refresh_tokens":                "REFRESH_TOKEN",
		"auth.profile_arn":                   "PROFILE_ARN",
		"auth.region":                        "KIRO_REGION",
		"rate.requests_per_minute":           "RATE_LIMIT_RPM",
		"timing.refresh_threshold":           "TOKEN_REFRESH_THRESHOLD",
		"timing.background_refresh_interval": "BACKGROUND_REFRESH_INTERVAL",
		"tool.description_max_length":        "TOOL_DESCRIPTION_MAX_LENGTH",
		"reasoning.fake_reasoning_enabled":   "FAKE_REASONING_ENABLED",
		"reasoning.fake_reasoning_max_tokens": "FAKE_REASONING_MAX_TOKENS",
		"truncation.recovery_enabled":        "TRUNCATION_RECOVERY",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}
