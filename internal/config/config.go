package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/edl-tools/tachyon-setup/pkg/cloud"
	"github.com/edl-tools/tachyon-setup/pkg/setupconfig"
	"github.com/spf13/viper"
)

const appName = "tachyon-setup"

// DefaultManifestURL is where release manifests are published.
const DefaultManifestURL = "https://tachyon-ci.particle.io/release"

// Config holds all application configuration
type Config struct {
	// Directories
	StateDir string `mapstructure:"state-dir"`
	CacheDir string `mapstructure:"cache-dir"`
	LogsDir  string `mapstructure:"logs-dir"`

	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// CLI profile holding the account and token
	ProfileFile string `mapstructure:"profile-file"`

	// Particle cloud
	APIURL  string `mapstructure:"api-url"`
	Staging bool   `mapstructure:"staging"`

	// Releases
	ManifestURL string `mapstructure:"manifest-url"`
	S3Region    string `mapstructure:"s3-region"`

	// Device tooling
	EDLTool        string        `mapstructure:"edl-tool"`
	PollInterval   time.Duration `mapstructure:"poll-interval"`
	StatusInterval time.Duration `mapstructure:"status-interval"`

	BehaviorProfile string `mapstructure:"behavior-profile"`

	// Security limits
	MaxArtifactSize int64 `mapstructure:"max-artifact-size"`

	Verbose bool `mapstructure:"verbose"`
}

// SetDefaults registers the default of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("state-dir", filepath.Join(xdg.StateHome, appName))
	v.SetDefault("cache-dir", filepath.Join(xdg.CacheHome, appName))
	v.SetDefault("profile-file", filepath.Join(xdg.Home, ".particle", "particle.config.json"))
	v.SetDefault("api-url", cloud.DefaultAPIURL)
	v.SetDefault("staging", false)
	v.SetDefault("manifest-url", DefaultManifestURL)
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("edl-tool", "particle-edl")
	v.SetDefault("poll-interval", time.Second)
	v.SetDefault("status-interval", 2*time.Second)
	v.SetDefault("behavior-profile", setupconfig.DefaultProfile.Name)
	v.SetDefault("max-artifact-size", 8*1024*1024*1024)
	v.SetDefault("verbose", false)
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration through v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Environment variables (TACHYON_STATE_DIR, etc.)
	v.SetEnvPrefix("TACHYON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Paths left unset follow state-dir wherever it was configured
	stateDir := v.GetString("state-dir")
	v.SetDefault("logs-dir", filepath.Join(stateDir, "logs"))
	v.SetDefault("sqlite-path", filepath.Join(stateDir, "runs.db"))
	v.SetDefault("fsm-db-path", filepath.Join(stateDir, "fsm"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The staging API is implied unless another api-url was given.
	if cfg.Staging && cfg.APIURL == cloud.DefaultAPIURL {
		cfg.APIURL = cloud.StagingAPIURL
	}

	return &cfg, nil
}

// Behavior returns the behaviour profile named by the configuration.
func (c *Config) Behavior() (setupconfig.Profile, error) {
	return setupconfig.ProfileByName(c.BehaviorProfile)
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	paths := []struct {
		name, value string
	}{
		{"state-dir", c.StateDir},
		{"cache-dir", c.CacheDir},
		{"logs-dir", c.LogsDir},
		{"sqlite-path", c.SQLitePath},
		{"fsm-db-path", c.FSMDBPath},
		{"profile-file", c.ProfileFile},
	}
	for _, p := range paths {
		if p.value == "" {
			return fmt.Errorf("%s cannot be empty", p.name)
		}
	}
	if c.APIURL == "" {
		return fmt.Errorf("api-url cannot be empty")
	}
	if c.ManifestURL == "" {
		return fmt.Errorf("manifest-url cannot be empty")
	}
	if c.EDLTool == "" {
		return fmt.Errorf("edl-tool cannot be empty")
	}
	if _, err := c.Behavior(); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status-interval must be positive")
	}
	if c.MaxArtifactSize <= 0 {
		return fmt.Errorf("max-artifact-size must be positive")
	}
	return nil
}
