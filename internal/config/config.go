package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aleksanaa/eportal-autologin/internal/eportal"
)

const (
	DefaultServerHost    = "172.16.200.101"
	DefaultCheckInterval = 10
	MinCheckInterval     = 5
	MaxCheckInterval     = 300
	DefaultListen        = "127.0.0.1:8731"
	DefaultRedisChannel  = "eportal:status"
)

type Config struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	ServerHost    string `yaml:"server_host"`
	CheckInterval int    `yaml:"check_interval"` // seconds
	ProbeURL      string `yaml:"probe_url"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	LocalIP       string `yaml:"local_ip"`
	CachePath     string `yaml:"cache_path"`

	Paths   PathsConfig   `yaml:"paths"`
	Log     LogConfig     `yaml:"log"`
	Control ControlConfig `yaml:"control"`
	Notify  NotifyConfig  `yaml:"notify"`
}

type PathsConfig struct {
	Login       string `yaml:"login"`
	PageInfo    string `yaml:"page_info"`
	Logout      string `yaml:"logout"`
	StatusCheck string `yaml:"status_check"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ControlConfig struct {
	Listen   string `yaml:"listen"`
	Disabled bool   `yaml:"disabled"`
}

type NotifyConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	AuthRef string `yaml:"auth_ref"`
	DB      int    `yaml:"db"`
	Channel string `yaml:"channel"`
}

// Default is the configuration used when no file exists.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.Password != "" && strings.HasPrefix(cfg.Password, "env:") {
		secret, err := ResolveSecret(cfg.Password)
		if err != nil {
			return Config{}, fmt.Errorf("password: %w", err)
		}
		cfg.Password = secret
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServerHost == "" {
		c.ServerHost = DefaultServerHost
	}
	c.CheckInterval = ClampInterval(c.CheckInterval)
	if c.ProbeURL == "" {
		c.ProbeURL = eportal.DefaultProbeURL
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = int(eportal.DefaultTimeout / time.Millisecond)
	}
	if c.Paths.Login == "" {
		c.Paths.Login = eportal.DefaultLoginPath
	}
	if c.Paths.PageInfo == "" {
		c.Paths.PageInfo = eportal.DefaultPageInfoPath
	}
	if c.Paths.Logout == "" {
		c.Paths.Logout = eportal.DefaultLogoutPath
	}
	if c.Paths.StatusCheck == "" {
		c.Paths.StatusCheck = eportal.DefaultStatusCheckPath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Control.Listen == "" {
		c.Control.Listen = DefaultListen
	}
	if c.Notify.Redis.Channel == "" {
		c.Notify.Redis.Channel = DefaultRedisChannel
	}
}

// ClampInterval keeps a check interval in seconds within [5, 300]; zero or
// negative means the default.
func ClampInterval(sec int) int {
	switch {
	case sec <= 0:
		return DefaultCheckInterval
	case sec < MinCheckInterval:
		return MinCheckInterval
	case sec > MaxCheckInterval:
		return MaxCheckInterval
	}
	return sec
}

// ResolveSecret returns ref itself, or the value of the environment variable
// named after an "env:" prefix. An unset or empty variable is an error.
func ResolveSecret(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	name, isEnv := strings.CutPrefix(ref, "env:")
	switch {
	case ref == "":
		return "", errors.New("empty secret reference")
	case !isEnv:
		return ref, nil
	}
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s: environment variable %s is not set", ref, name)
}

// Overrides come from the command line. Empty fields keep the file value.
type Overrides struct {
	Username   string
	Password   string
	ServerHost string
	LocalIP    string
}

// With returns a copy of c with o applied; c itself is not touched.
func (c Config) With(o Overrides) Config {
	if o.Username != "" {
		c.Username = o.Username
	}
	if o.Password != "" {
		c.Password = o.Password
	}
	if o.ServerHost != "" {
		c.ServerHost = o.ServerHost
	}
	if o.LocalIP != "" {
		c.LocalIP = o.LocalIP
	}
	return c
}

func (c Config) Credentials() eportal.Credentials {
	return eportal.Credentials{Username: c.Username, Password: c.Password}
}

func (c Config) Endpoints() eportal.Endpoints {
	return eportal.Endpoints{
		ServerHost:      c.ServerHost,
		LoginPath:       c.Paths.Login,
		PageInfoPath:    c.Paths.PageInfo,
		LogoutPath:      c.Paths.Logout,
		StatusCheckPath: c.Paths.StatusCheck,
		ProbeURL:        c.ProbeURL,
		Timeout:         time.Duration(c.TimeoutMs) * time.Millisecond,
	}
}

func (c Config) Interval() time.Duration {
	return time.Duration(ClampInterval(c.CheckInterval)) * time.Second
}
