// Package config provides Viper-based configuration loading for the initiative service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Minimum settle delays between an anchor write and the start broadcast.
const (
	MinSettleDelay = 500 * time.Millisecond
	MinResumeDelay = time.Second
)

// ParticipantConfig identifies the local participant of the shared session.
type ParticipantConfig struct {
	// ID is the stable participant identifier.
	ID string `mapstructure:"id"`
	// Name is the display name used as chat speaker fallback.
	Name string `mapstructure:"name"`
	// Owner marks the participant as a session owner eligible for controller election.
	Owner bool `mapstructure:"owner"`
}

// BusConfig holds broadcast transport settings.
type BusConfig struct {
	// Mode is "local" (in-process only), "server" (host the gRPC bus), or "client" (join a remote bus).
	Mode string `mapstructure:"mode"`
	// Host is the bind/connect address for the gRPC bus.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the gRPC bus.
	Port int `mapstructure:"port"`
	// ControllerTimeout bounds each controller election query made by a client.
	ControllerTimeout time.Duration `mapstructure:"controller_timeout"`
}

// Addr returns the "host:port" bus address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (b BusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// StorageConfig selects the backend for world settings and the chat log.
type StorageConfig struct {
	// Driver is one of "memory", "postgres", "sqlite".
	Driver string `mapstructure:"driver"`
	// SQLitePath is the database file used when Driver is "sqlite".
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// HealthInterval is the period between background pings; 0 disables them.
	HealthInterval time.Duration `mapstructure:"health_interval"`
	// AutoMigrate applies the embedded schema before the stores are opened.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// FeedConfig holds settings for the websocket render feed.
type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (f FeedConfig) Addr() string {
	return fmt.Sprintf("%s:%d", f.Host, f.Port)
}

// TimerConfig holds the shared countdown timer cadence and settle delays.
type TimerConfig struct {
	// TickInterval is the local display refresh cadence.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// SettleDelay is the wait between stamping an anchor and broadcasting start.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// ResumeDelay is the wait between re-anchoring on unpause and broadcasting start.
	ResumeDelay time.Duration `mapstructure:"resume_delay"`
	// AutoStartOnRound restarts the clock at every round start instead of waiting for the operator.
	AutoStartOnRound bool `mapstructure:"auto_start_on_round"`
	// DefaultDuration seeds timerDuration when the settings store has no value.
	DefaultDuration int `mapstructure:"default_duration"`
}

// RulesetConfig holds host ruleset options consulted during classification.
type RulesetConfig struct {
	// DexTiebreaker appends the actor's dexterity score to initiative values.
	DexTiebreaker bool `mapstructure:"dex_tiebreaker"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Participant ParticipantConfig `mapstructure:"participant"`
	Bus         BusConfig         `mapstructure:"bus"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Timer       TimerConfig       `mapstructure:"timer"`
	Ruleset     RulesetConfig     `mapstructure:"ruleset"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateParticipant(c.Participant); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBus(c.Bus); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSharedStorage(c.Bus, c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Driver == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Feed.Enabled {
		if err := validateFeed(c.Feed); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateTimer(c.Timer); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateParticipant(p ParticipantConfig) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("participant.id must not be empty")
	}
	return nil
}

func validateBus(b BusConfig) error {
	var errs []string
	validModes := map[string]bool{"local": true, "server": true, "client": true}
	if !validModes[b.Mode] {
		errs = append(errs, fmt.Sprintf("bus.mode must be one of [local, server, client], got %q", b.Mode))
	}
	if b.Mode != "local" {
		if b.Host == "" {
			errs = append(errs, "bus.host must not be empty")
		}
		if b.Port < 1 || b.Port > 65535 {
			errs = append(errs, fmt.Sprintf("bus.port must be 1-65535, got %d", b.Port))
		}
	}
	if b.ControllerTimeout < 0 {
		errs = append(errs, "bus.controller_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	switch s.Driver {
	case "memory", "postgres":
		return nil
	case "sqlite":
		if strings.TrimSpace(s.SQLitePath) == "" {
			return errors.New("storage.sqlite_path must not be empty when storage.driver is sqlite")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver must be one of [memory, postgres, sqlite], got %q", s.Driver)
	}
}

// validateSharedStorage requires postgres when participants run in separate
// processes: the anchor written by the controller must be the one every
// other process reads.
func validateSharedStorage(b BusConfig, s StorageConfig) error {
	if b.Mode == "local" || s.Driver == "postgres" {
		return nil
	}
	return fmt.Errorf("storage.driver must be postgres when bus.mode is %s, got %q", b.Mode, s.Driver)
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if d.HealthInterval < 0 {
		errs = append(errs, fmt.Sprintf("database.health_interval must be >= 0, got %s", d.HealthInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateFeed(f FeedConfig) error {
	if f.Port < 1 || f.Port > 65535 {
		return fmt.Errorf("feed.port must be 1-65535, got %d", f.Port)
	}
	return nil
}

func validateTimer(t TimerConfig) error {
	var errs []string
	if t.TickInterval <= 0 {
		errs = append(errs, "timer.tick_interval must be positive")
	}
	if t.SettleDelay < MinSettleDelay {
		errs = append(errs, fmt.Sprintf("timer.settle_delay must be >= %s, got %s", MinSettleDelay, t.SettleDelay))
	}
	if t.ResumeDelay < MinResumeDelay {
		errs = append(errs, fmt.Sprintf("timer.resume_delay must be >= %s, got %s", MinResumeDelay, t.ResumeDelay))
	}
	if t.DefaultDuration < 0 {
		errs = append(errs, fmt.Sprintf("timer.default_duration must be >= 0, got %d", t.DefaultDuration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ACTINIT_ prefix
	v.SetEnvPrefix("ACTINIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("participant.id", "gm")
	v.SetDefault("participant.name", "Game Master")
	v.SetDefault("participant.owner", true)

	v.SetDefault("bus.mode", "local")
	v.SetDefault("bus.host", "127.0.0.1")
	v.SetDefault("bus.port", 50061)
	v.SetDefault("bus.controller_timeout", "2s")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "data/initiative.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "initiative")
	v.SetDefault("database.password", "initiative")
	v.SetDefault("database.name", "initiative")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.health_interval", "30s")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("feed.enabled", true)
	v.SetDefault("feed.host", "0.0.0.0")
	v.SetDefault("feed.port", 8088)

	v.SetDefault("timer.tick_interval", "100ms")
	v.SetDefault("timer.settle_delay", "500ms")
	v.SetDefault("timer.resume_delay", "1s")
	v.SetDefault("timer.auto_start_on_round", true)
	v.SetDefault("timer.default_duration", 60)

	v.SetDefault("ruleset.dex_tiebreaker", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
