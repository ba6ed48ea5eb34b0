// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/tracking"
)

// APIKeyEnv overrides riot.apiKey when set.
const APIKeyEnv = "RIOT_API_KEY"

// RiotConfig configures the upstream client.
type RiotConfig struct {
	APIKey            string        `yaml:"apiKey"`
	Platform          string        `yaml:"platform"`
	Region            string        `yaml:"region"`
	PlatformBaseURL   string        `yaml:"platformBaseURL"`
	RegionalBaseURL   string        `yaml:"regionalBaseURL"`
	MaxAttempts       int           `yaml:"maxAttempts"`
	DefaultRetryAfter time.Duration `yaml:"defaultRetryAfter"`
	HTTPTimeout       time.Duration `yaml:"httpTimeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

func (c *RiotConfig) applyDefaults() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		c.APIKey = key
	}
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	if c.Platform == "" {
		c.Platform = "euw1"
	}
	c.Region = strings.ToLower(strings.TrimSpace(c.Region))
	if c.Region == "" {
		c.Region = RegionForPlatform(c.Platform)
	}
	c.PlatformBaseURL = strings.TrimRight(strings.TrimSpace(c.PlatformBaseURL), "/")
	if c.PlatformBaseURL == "" {
		c.PlatformBaseURL = "https://" + c.Platform + ".api.riotgames.com"
	}
	c.RegionalBaseURL = strings.TrimRight(strings.TrimSpace(c.RegionalBaseURL), "/")
	if c.RegionalBaseURL == "" && c.Region != "" {
		c.RegionalBaseURL = "https://" + c.Region + ".api.riotgames.com"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = 30 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
}

func (c RiotConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("apiKey required (or set %s)", APIKeyEnv)
	}
	if c.Region == "" {
		return fmt.Errorf("region required for platform %q", c.Platform)
	}
	if c.RegionalBaseURL == "" {
		return fmt.Errorf("regionalBaseURL required")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("maxAttempts must be >0")
	}
	return nil
}

// TrackingConfig controls the per-summoner polling cadence.
type TrackingConfig struct {
	IdleInterval            time.Duration `yaml:"idleInterval"`
	InGameInterval          time.Duration `yaml:"inGameInterval"`
	Cooldown                time.Duration `yaml:"cooldown"`
	ResultFetchAttempts     int           `yaml:"resultFetchAttempts"`
	ResultRetryInterval     time.Duration `yaml:"resultRetryInterval"`
	PostGamePersistAttempts int           `yaml:"postGamePersistAttempts"`
	RankCacheTTL            time.Duration `yaml:"rankCacheTTL"`
}

func (c *TrackingConfig) applyDefaults() {
	if c.IdleInterval <= 0 {
		c.IdleInterval = 180 * time.Second
	}
	if c.InGameInterval <= 0 {
		c.InGameInterval = 60 * time.Second
	}
	// A negative cooldown disables the pause after a game; zero means unset.
	if c.Cooldown == 0 {
		c.Cooldown = 4 * time.Minute
	}
	if c.ResultFetchAttempts <= 0 {
		c.ResultFetchAttempts = 3
	}
	if c.ResultRetryInterval <= 0 {
		c.ResultRetryInterval = 60 * time.Second
	}
	if c.PostGamePersistAttempts <= 0 {
		c.PostGamePersistAttempts = 3
	}
	if c.RankCacheTTL <= 0 {
		c.RankCacheTTL = 30 * time.Second
	}
}

func (c TrackingConfig) validate() error {
	if c.PostGamePersistAttempts < 2 {
		return fmt.Errorf("postGamePersistAttempts must be >=2")
	}
	if c.RankCacheTTL >= c.InGameInterval {
		return fmt.Errorf("rankCacheTTL must be shorter than inGameInterval")
	}
	return nil
}

// SummonerConfig is one tracked identity.
type SummonerConfig struct {
	Name       string `yaml:"name"`
	PUUID      string `yaml:"puuid"`
	SummonerID string `yaml:"summonerId"`
	AccountID  string `yaml:"accountId"`
}

// Identity converts the entry into the immutable domain identity.
func (c SummonerConfig) Identity() tracking.Summoner {
	return tracking.Summoner{
		Name:       strings.TrimSpace(c.Name),
		PUUID:      strings.TrimSpace(c.PUUID),
		SummonerID: strings.TrimSpace(c.SummonerID),
		AccountID:  strings.TrimSpace(c.AccountID),
	}
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour.
// An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

// InMemory reports whether persistence should use the in-memory store.
func (c DatabaseConfig) InMemory() bool {
	return c.DSN == ""
}

// TelemetryConfig configures OTLP metric export.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	OTLPEndpoint   string        `yaml:"otlpEndpoint"`
	OTLPInsecure   bool          `yaml:"otlpInsecure"`
	ServiceName    string        `yaml:"serviceName"`
	MetricInterval time.Duration `yaml:"metricInterval"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIServerConfig configures the read-only control surface. An empty address disables it.
type APIServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the unified tracker configuration sourced from YAML.
type AppConfig struct {
	Environment Environment      `yaml:"environment"`
	Riot        RiotConfig       `yaml:"riot"`
	Tracking    TrackingConfig   `yaml:"tracking"`
	Summoners   []SummonerConfig `yaml:"summoners"`
	KnownPUUIDs []string         `yaml:"knownPuuids"`
	Database    DatabaseConfig   `yaml:"database"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Logging     LoggingConfig    `yaml:"logging"`
	APIServer   APIServerConfig  `yaml:"apiServer"`
}

// Default returns a configuration with every section defaulted and no summoners.
func Default() AppConfig {
	cfg := AppConfig{
		APIServer: APIServerConfig{Addr: ":8090"},
	}
	cfg.normalise()
	return cfg
}

// Identities returns the tracked summoners in configuration order.
func (c AppConfig) Identities() []tracking.Summoner {
	out := make([]tracking.Summoner, 0, len(c.Summoners))
	for _, s := range c.Summoners {
		out = append(out, s.Identity())
	}
	return out
}

// KnownIdentities returns the resolver's identity set: configured known PUUIDs plus every tracked summoner.
func (c AppConfig) KnownIdentities() tracking.IdentitySet {
	ids := make([]string, 0, len(c.KnownPUUIDs)+len(c.Summoners))
	ids = append(ids, c.KnownPUUIDs...)
	for _, s := range c.Summoners {
		ids = append(ids, s.PUUID)
	}
	return tracking.NewIdentitySet(ids...)
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := AppConfig{APIServer: APIServerConfig{Addr: ":8090"}}
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads the file at configPath, falling back to Default when it does not exist.
// The boolean reports whether the file was read.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, bool, error) {
	cfg, err := Load(ctx, configPath)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, false, err
	}
	cfg = Default()
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, false, err
	}
	return cfg, false, nil
}

func (c *AppConfig) normalise() {
	c.Environment = normalizeEnvironment(c.Environment)
	c.Riot.applyDefaults()
	c.Tracking.applyDefaults()
	c.Database.applyDefaults()

	for i := range c.Summoners {
		c.Summoners[i].Name = strings.TrimSpace(c.Summoners[i].Name)
		c.Summoners[i].PUUID = strings.TrimSpace(c.Summoners[i].PUUID)
		c.Summoners[i].SummonerID = strings.TrimSpace(c.Summoners[i].SummonerID)
		c.Summoners[i].AccountID = strings.TrimSpace(c.Summoners[i].AccountID)
	}

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "lol-tracker"
	}
	if c.Telemetry.MetricInterval <= 0 {
		c.Telemetry.MetricInterval = 30 * time.Second
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	c.APIServer.Addr = strings.TrimSpace(c.APIServer.Addr)
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if err := c.Riot.validate(); err != nil {
		return fmt.Errorf("riot: %w", err)
	}
	if err := c.Tracking.validate(); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}

	names := make(map[string]struct{}, len(c.Summoners))
	puuids := make(map[string]struct{}, len(c.Summoners))
	for idx, s := range c.Summoners {
		if s.Name == "" {
			return fmt.Errorf("summoners[%d]: name required", idx)
		}
		if s.PUUID == "" {
			return fmt.Errorf("summoners[%d]: puuid required", idx)
		}
		key := strings.ToLower(s.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("duplicate summoner name %q", s.Name)
		}
		names[key] = struct{}{}
		if _, dup := puuids[s.PUUID]; dup {
			return fmt.Errorf("duplicate summoner puuid for %q", s.Name)
		}
		puuids[s.PUUID] = struct{}{}
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be json or console")
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry otlpEndpoint required when enabled")
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
