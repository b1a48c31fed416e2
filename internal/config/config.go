// Package config loads portal client settings from config.yaml, CAMPUS_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "CAMPUS"

	keyAPIBase     = "api_base"
	keyTablesPath  = "tables_path"
	keyTablePath   = "table_path"
	keyStreamPath  = "stream_path"
	keyLogPath     = "log_path"
	keyTimeout     = "timeout"
	keyRateLimit   = "rate_limit"
	keyRateBurst   = "rate_burst"
	keySessionFile = "session_file"
	keyListen      = "listen"
	keyLogLevel    = "log.level"
	keyLogDir      = "log.dir"
	keyLogShip     = "log.ship"

	defaultAPIBase    = "http://127.0.0.1:8000/api"
	defaultTablesPath = "/data/tables"
	defaultTablePath  = "/data/table"
	defaultStreamPath = "/ai_qa/qa/stream"
	defaultLogPath    = "/log/frontend"
	defaultTimeout    = 30 * time.Second
	defaultRateLimit  = 10.0
	defaultRateBurst  = 5
	defaultListen     = "127.0.0.1:4173"
	defaultLogLevel   = "info"
)

// Config errors.
var (
	ErrAPIBaseInvalid = errors.New("config: api_base must be an absolute http(s) URL")
	ErrPathInvalid    = errors.New("config: endpoint paths must start with /")
	ErrTimeoutInvalid = errors.New("config: timeout must be positive")
	ErrRateInvalid    = errors.New("config: rate_limit and rate_burst must not be negative")
)

// LogConfig controls the logging package.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
	Ship  bool   `mapstructure:"ship"`
}

// Config captures runtime settings for the portal client.
type Config struct {
	APIBase     string        `mapstructure:"api_base"`
	TablesPath  string        `mapstructure:"tables_path"`
	TablePath   string        `mapstructure:"table_path"`
	StreamPath  string        `mapstructure:"stream_path"`
	LogPath     string        `mapstructure:"log_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
	SessionFile string        `mapstructure:"session_file"`
	Listen      string        `mapstructure:"listen"`
	Log         LogConfig     `mapstructure:"log"`
}

// DefaultDir is $HOME/.campus, or .campus when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".campus"
	}
	return filepath.Join(home, ".campus")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(keyAPIBase, defaultAPIBase)
	v.SetDefault(keyTablesPath, defaultTablesPath)
	v.SetDefault(keyTablePath, defaultTablePath)
	v.SetDefault(keyStreamPath, defaultStreamPath)
	v.SetDefault(keyLogPath, defaultLogPath)
	v.SetDefault(keyTimeout, defaultTimeout)
	v.SetDefault(keyRateLimit, defaultRateLimit)
	v.SetDefault(keyRateBurst, defaultRateBurst)
	v.SetDefault(keySessionFile, filepath.Join(DefaultDir(), "session.yaml"))
	v.SetDefault(keyListen, defaultListen)
	v.SetDefault(keyLogLevel, defaultLogLevel)
	v.SetDefault(keyLogDir, "")
	v.SetDefault(keyLogShip, false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. When file is set it must exist; otherwise
// config.yaml is searched in the working directory and DefaultDir, and a
// missing file is not an error.
func Load(file string) (Config, error) {
	v := newViper()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	c.APIBase = strings.TrimSuffix(strings.TrimSpace(c.APIBase), "/")
	c.TablesPath = strings.TrimSpace(c.TablesPath)
	c.TablePath = strings.TrimSuffix(strings.TrimSpace(c.TablePath), "/")
	c.StreamPath = strings.TrimSpace(c.StreamPath)
	c.LogPath = strings.TrimSpace(c.LogPath)
	c.SessionFile = strings.TrimSpace(c.SessionFile)
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrAPIBaseInvalid, c.APIBase)
	}
	for _, p := range []string{c.TablesPath, c.TablePath, c.StreamPath, c.LogPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: %q", ErrPathInvalid, p)
		}
	}
	if c.Timeout <= 0 {
		return ErrTimeoutInvalid
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return ErrRateInvalid
	}
	return nil
}

// Endpoint joins an API path onto the base URL.
func (c Config) Endpoint(path string) string {
	return c.APIBase + path
}
