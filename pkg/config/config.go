package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "projectreg"
	configFile = "config.yaml"
	envPrefix  = "PROJECTREG_"
)

// Config is the application configuration. It is read-only once loaded.
type Config struct {
	Lark     LarkConfig     `yaml:"lark"`
	Data     DataConfig     `yaml:"data"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Calendar CalendarConfig `yaml:"calendar"`
}

type LarkConfig struct {
	BaseURL        string   `yaml:"base_url"`
	AuthorizeURL   string   `yaml:"authorize_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
	TokenCache     bool     `yaml:"token_cache"`
	// RedirectPort is the loopback port used by `projectreg login`.
	RedirectPort int      `yaml:"redirect_port"`
	LoginTimeout Duration `yaml:"login_timeout"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	// PublicURL is where browsers reach the server; the login callback is
	// built from it.
	PublicURL string `yaml:"public_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CalendarConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Name            string `yaml:"name"`
	CredentialsFile string `yaml:"credentials_file"`
	// SweepInterval is how often `serve` flags overdue payments. Zero disables.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// Duration is a time.Duration written as a string ("30s") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// GetXdgHome returns ~/.config/projectreg.
func GetXdgHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

// GetConfigPath returns the config file location: PROJECTREG_CONFIG if set,
// otherwise config.yaml in the XDG directory.
func GetConfigPath() (string, error) {
	if p := os.Getenv(envPrefix + "CONFIG"); p != "" {
		return p, nil
	}
	dir, err := GetXdgHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads configuration with precedence defaults → YAML file → env vars.
// An empty path means GetConfigPath. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		if path, err = GetConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := loadYAMLFile(cfg, path); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() (*Config, error) {
	dir, err := GetXdgHome()
	if err != nil {
		return nil, fmt.Errorf("locate config directory: %w", err)
	}
	return &Config{
		Lark: LarkConfig{
			BaseURL:        "https://open.larksuite.com/open-apis",
			AuthorizeURL:   "https://open.larksuite.com/open-apis/authen/v1/authorize",
			RequestTimeout: Duration(30 * time.Second),
			RedirectPort:   5173,
			LoginTimeout:   Duration(5 * time.Minute),
		},
		Data: DataConfig{
			Dir: dir,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			PublicURL:       "http://localhost:8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Calendar: CalendarConfig{
			Name:          "Training Schedule",
			SweepInterval: Duration(time.Hour),
		},
	}, nil
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies PROJECTREG_* variables. Empty or unparsable
// values are ignored.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Lark.BaseURL, "LARK_BASE_URL")
	setString(&cfg.Lark.AuthorizeURL, "LARK_AUTHORIZE_URL")
	setDuration(&cfg.Lark.RequestTimeout, "LARK_REQUEST_TIMEOUT")
	setBool(&cfg.Lark.TokenCache, "LARK_TOKEN_CACHE")
	setInt(&cfg.Lark.RedirectPort, "LARK_REDIRECT_PORT")
	setDuration(&cfg.Lark.LoginTimeout, "LARK_LOGIN_TIMEOUT")

	setString(&cfg.Data.Dir, "DATA_DIR")

	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	setString(&cfg.Server.PublicURL, "SERVER_PUBLIC_URL")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setBool(&cfg.Calendar.Enabled, "CALENDAR_ENABLED")
	setString(&cfg.Calendar.Name, "CALENDAR_NAME")
	setString(&cfg.Calendar.CredentialsFile, "CALENDAR_CREDENTIALS_FILE")
	setDuration(&cfg.Calendar.SweepInterval, "CALENDAR_SWEEP_INTERVAL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Lark.BaseURL == "" {
		return errors.New("lark.base_url is required")
	}
	if c.Lark.RequestTimeout <= 0 {
		return errors.New("lark.request_timeout must be positive")
	}
	if c.Lark.RedirectPort <= 0 || c.Lark.RedirectPort > 65535 {
		return fmt.Errorf("lark.redirect_port %d is out of range", c.Lark.RedirectPort)
	}
	if c.Data.Dir == "" {
		return errors.New("data.dir is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", c.Log.Format)
	}
	if c.Calendar.Enabled && c.Calendar.Name == "" {
		return errors.New("calendar.name is required when the calendar mirror is enabled")
	}
	if c.Calendar.SweepInterval < 0 {
		return errors.New("calendar.sweep_interval must not be negative")
	}
	return nil
}

// DatabasePath is the SQLite file inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.Dir, "projectreg.db")
}

// CalendarCredentialsPath returns the Google client secrets file, defaulting
// to credentials.json in the data directory.
func (c *Config) CalendarCredentialsPath() string {
	if c.Calendar.CredentialsFile != "" {
		return c.Calendar.CredentialsFile
	}
	return filepath.Join(c.Data.Dir, "credentials.json")
}

// CalendarTokenPath is where the Google OAuth token is kept.
func (c *Config) CalendarTokenPath() string {
	return filepath.Join(c.Data.Dir, "google-token.json")
}
