package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/observatory-dash/backend/internal/logger"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerPort     = 8080
	DefaultControllerPort = 1888
	DefaultSeedLimit      = 100
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Controller  ControllerConfig  `yaml:"controller"`
	Observatory ObservatoryConfig `yaml:"observatory"`
	Seeding     SeedingConfig     `yaml:"seeding"`
	Broadcast   BroadcastConfig   `yaml:"broadcast"`
	NATS        NATSConfig        `yaml:"nats"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	System      SystemConfig      `yaml:"system"`
	Log         logger.Config     `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ControllerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	EventsPath           string        `yaml:"events_path"`
	HistoryPath          string        `yaml:"history_path"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectJitter      time.Duration `yaml:"reconnect_jitter"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	HistoryTimeout       time.Duration `yaml:"history_timeout"`
	// EndTimeMislabeledUTC marks target end times that carry a Z suffix
	// but are really observatory wall-clock time.
	EndTimeMislabeledUTC bool `yaml:"end_time_mislabeled_utc"`
}

type ObservatoryConfig struct {
	// Timezone is an IANA name ("America/Denver") or "Local".
	Timezone string `yaml:"timezone"`
}

type SeedingConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

type BroadcastConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ClientBuffer      int           `yaml:"client_buffer"`
	MaxClients        int           `yaml:"max_clients"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SystemConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	DiskPath     string        `yaml:"disk_path"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultServerPort,
			Host: "127.0.0.1",
		},
		Controller: ControllerConfig{
			Host:           "localhost",
			Port:           DefaultControllerPort,
			EventsPath:     "v2/socket",
			HistoryPath:    "v2/api/event-history",
			ReconnectDelay: 5 * time.Second,
			PingInterval:   30 * time.Second,
			HistoryTimeout: 10 * time.Second,
		},
		Observatory: ObservatoryConfig{
			Timezone: "Local",
		},
		Seeding: SeedingConfig{
			Enabled: true,
			Limit:   DefaultSeedLimit,
		},
		Broadcast: BroadcastConfig{
			HeartbeatInterval: 30 * time.Second,
			ClientBuffer:      64,
			MaxClients:        100,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "observatory.state",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		System: SystemConfig{
			PollInterval: 5 * time.Second,
			DiskPath:     "/",
		},
		Log: logger.Config{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path, layers it over the defaults, applies OBSDASH_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = defaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("OBSDASH_CONTROLLER_HOST"); ok && v != "" {
		c.Controller.Host = v
	}
	if v, ok := lookup("OBSDASH_CONTROLLER_PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OBSDASH_CONTROLLER_PORT: %w", err)
		}
		c.Controller.Port = n
	}
	if v, ok := lookup("OBSDASH_TIMEZONE"); ok && v != "" {
		c.Observatory.Timezone = v
	}
	if v, ok := lookup("OBSDASH_AUTH_TOKEN"); ok {
		c.Server.AuthToken = v
	}
	if v, ok := lookup("OBSDASH_NATS_URL"); ok && v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Controller.Host == "" {
		errs = append(errs, errors.New("controller.host is required"))
	}
	if c.Controller.Port <= 0 || c.Controller.Port > 65535 {
		errs = append(errs, fmt.Errorf("controller.port %d out of range", c.Controller.Port))
	}
	if c.Controller.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("controller.reconnect_delay must be positive"))
	}
	if c.Controller.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("controller.max_reconnect_attempts must not be negative"))
	}
	if c.Seeding.Limit < 0 {
		errs = append(errs, errors.New("seeding.limit must not be negative"))
	}
	if c.Broadcast.ClientBuffer <= 0 {
		errs = append(errs, errors.New("broadcast.client_buffer must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.NATS.Enabled && c.NATS.Subject == "" {
		errs = append(errs, errors.New("nats.subject is required when nats is enabled"))
	}
	return errors.Join(errs...)
}

// Location resolves observatory.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Observatory.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("observatory.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// EventsURL is the controller's websocket endpoint.
func (c ControllerConfig) EventsURL() string {
	return fmt.Sprintf("ws://%s:%d/%s", c.Host, c.Port, strings.TrimPrefix(c.EventsPath, "/"))
}

// HistoryURL is the controller's event history endpoint.
func (c ControllerConfig) HistoryURL() string {
	return fmt.Sprintf("http://%s:%d/%s", c.Host, c.Port, strings.TrimPrefix(c.HistoryPath, "/"))
}

// GenerateToken returns a random 16-byte hex token for server.auth_token.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Diff lists human-readable differences between two configs for the
// settings a reload can change without a restart.
func Diff(old, new *Config) []string {
	var changes []string
	if old.Log.Level != new.Log.Level {
		changes = append(changes, fmt.Sprintf("log.level: %s → %s", old.Log.Level, new.Log.Level))
	}
	if old.Log.Debug != new.Log.Debug {
		changes = append(changes, fmt.Sprintf("log.debug: %v → %v", old.Log.Debug, new.Log.Debug))
	}
	if old.Controller.ReconnectDelay != new.Controller.ReconnectDelay {
		changes = append(changes, fmt.Sprintf("controller.reconnect_delay: %s → %s",
			old.Controller.ReconnectDelay, new.Controller.ReconnectDelay))
	}
	if old.Seeding.Limit != new.Seeding.Limit {
		changes = append(changes, fmt.Sprintf("seeding.limit: %d → %d", old.Seeding.Limit, new.Seeding.Limit))
	}
	if old.Controller.Host != new.Controller.Host || old.Controller.Port != new.Controller.Port {
		changes = append(changes, fmt.Sprintf("controller: %s:%d → %s:%d (restart required)",
			old.Controller.Host, old.Controller.Port, new.Controller.Host, new.Controller.Port))
	}
	if old.Server.Port != new.Server.Port || old.Server.Host != new.Server.Host {
		changes = append(changes, fmt.Sprintf("server: %s:%d → %s:%d (restart required)",
			old.Server.Host, old.Server.Port, new.Server.Host, new.Server.Port))
	}
	return changes
}
