package common

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/term"
)

// Config holds the daemon's full configuration, layered defaults → TOML
// file → environment → CLI flags (highest precedence).
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
	Timing    TimingConfig    `toml:"timing"`
	Clean     bool            `toml:"clean"`
}

// StoreConfig holds the relational store's connection credentials.
// Host/Port are the CLI-facing fields (--host/--port); Address is the
// connection string actually handed to the driver, derived from them by
// BuildAddress unless a caller overrides it directly (tests, advanced
// TOML configs that want a non-default scheme).
type StoreConfig struct {
	Address   string `toml:"address"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"dbname"`
	User      string `toml:"user"`
	Password  string `toml:"password"` // a literal, or a path to a file holding one
}

// BuildAddress derives the driver connection string from Host/Port when
// Address hasn't been set explicitly.
func (s *StoreConfig) BuildAddress() {
	if s.Address != "" {
		return
	}
	s.Address = fmt.Sprintf("ws://%s:%d", s.Host, s.Port)
}

// SchedulerConfig holds scheduler selection overrides (-q/--queue).
type SchedulerConfig struct {
	Name      string `toml:"name"` // "slurm", "sge", or "" for autodetect
	RateLimit int    `toml:"rate_limit"`
}

// LoggingConfig holds the daemon's logging knobs: level, rolling file
// directory, and verbose override (--log_dir/-v).
type LoggingConfig struct {
	Level   string `toml:"level"`
	LogDir  string `toml:"log_dir"`
	Verbose bool   `toml:"verbose"`
}

// TimingConfig holds the daemon's tick/poll/backoff cadences. All are
// configuration, not invariants: any positive duration is sound.
type TimingConfig struct {
	Tick          time.Duration `toml:"tick"`
	Monitor       time.Duration `toml:"monitor"`
	Depend        time.Duration `toml:"depend"`
	SubmitTrials  int           `toml:"submit_trials"`
	SubmitBackoff time.Duration `toml:"submit_backoff"`
	StoreBackoff  time.Duration `toml:"store_backoff"`
	StoreRetries  int           `toml:"store_retries"`
	InvokeTimeout time.Duration `toml:"invoke_timeout"`
}

// NewDefaultConfig returns the daemon's built-in defaults, the bottom layer
// of the configuration precedence.
func NewDefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Host:      "localhost",
			Port:      8000,
			Namespace: "mdsuper",
			Database:  "mdsuper",
			User:      "root",
		},
		Scheduler: SchedulerConfig{
			RateLimit: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			LogDir: "./logs",
		},
		Timing: TimingConfig{
			Tick:          10 * time.Second,
			Monitor:       5 * time.Second,
			Depend:        5 * time.Second,
			SubmitTrials:  3,
			SubmitBackoff: 5 * time.Second,
			StoreBackoff:  2 * time.Second,
			StoreRetries:  10,
			InvokeTimeout: 2 * time.Minute,
		},
	}
}

// LoadConfig loads the TOML file at path (if it exists — a missing file is
// not an error, it simply leaves defaults in place) then applies
// environment variable overrides. CLI flags are applied separately by the
// caller, since pflag values are only known after parsing.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies MDSUPER_*-prefixed environment variable
// overrides, the middle configuration layer.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MDSUPER_STORE_ADDRESS"); v != "" {
		config.Store.Address = v
	}
	if v := os.Getenv("MDSUPER_DBHOST"); v != "" {
		config.Store.Host = v
	}
	if v := os.Getenv("MDSUPER_DBPORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Store.Port = p
		}
	}
	if v := os.Getenv("MDSUPER_STORE_NAMESPACE"); v != "" {
		config.Store.Namespace = v
	}
	if v := os.Getenv("MDSUPER_DBNAME"); v != "" {
		config.Store.Database = v
	}
	if v := os.Getenv("MDSUPER_DBUSER"); v != "" {
		config.Store.User = v
	}
	if v := os.Getenv("MDSUPER_PASSWORD"); v != "" {
		config.Store.Password = v
	}
	if v := os.Getenv("MDSUPER_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("MDSUPER_QUEUE"); v != "" {
		config.Scheduler.Name = v
	}
	if v := os.Getenv("MDSUPER_LOG_DIR"); v != "" {
		config.Logging.LogDir = v
	}
	if v := os.Getenv("MDSUPER_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Logging.Verbose = b
		}
	}
	if v := os.Getenv("MDSUPER_CLEAN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Clean = b
		}
	}
}

// ResolvePassword implements the -W/--password contract: the flag value
// is tried first as a path to a file holding the password (its contents,
// trimmed, are the password); if no such file exists (or the path is a
// directory) it is used as the literal password, and an existing file that
// cannot be read is an error; if empty, the user is prompted on the controlling
// terminal. Config-file/env-supplied passwords follow the same rule.
func ResolvePassword(flagValue string) (string, error) {
	if flagValue == "" {
		return promptPassword()
	}
	if info, err := os.Stat(flagValue); err == nil && !info.IsDir() {
		data, err := os.ReadFile(flagValue)
		if err != nil {
			return "", fmt.Errorf("config: read password file %s: %w", flagValue, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return flagValue, nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "store password: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("config: read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	// Not an interactive terminal (e.g. piped stdin in tests): fall back
	// to a plain line read.
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("config: read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
