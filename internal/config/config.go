package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/seqfetch/internal/artifact"
	"github.com/danmuck/seqfetch/internal/protocol/session"
)

// Settings is everything one fetch run needs besides the command line.
type Settings struct {
	Session     session.Config
	Output      string
	MetricsAddr string
	LogLevel    string
}

func Default() Settings {
	return Settings{
		Session: session.DefaultConfig(),
		Output:  artifact.DefaultPath,
	}
}

type fileConfig struct {
	Host               string      `toml:"host"`
	Port               int         `toml:"port"`
	Output             string      `toml:"output"`
	MetricsAddr        string      `toml:"metrics_addr"`
	LogLevel           string      `toml:"log_level"`
	ConnectTimeout     string      `toml:"connect_timeout"`
	WriteTimeout       string      `toml:"write_timeout"`
	IdleTimeout        string      `toml:"idle_timeout"`
	ReadBufferSize     int         `toml:"read_buffer_size"`
	MaxConnectAttempts int         `toml:"max_connect_attempts"`
	MaxResendRounds    int         `toml:"max_resend_rounds"`
	MaxSequence        int32       `toml:"max_sequence"`
	DuplicatePolicy    string      `toml:"duplicate_policy"`
	AllowPartial       bool        `toml:"allow_partial"`
	Backoff            fileBackoff `toml:"backoff"`
}

type fileBackoff struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

// Load reads a TOML file on top of Default. Keys absent from the file keep
// their defaults.
func Load(path string) (Settings, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Settings{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("host") {
		cfg.Session.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Session.Port = raw.Port
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.TrimSpace(raw.Output)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.Session.IdleTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := parseDuration(d.key, d.raw)
		if err != nil {
			return Settings{}, err
		}
		*d.dst = v
	}

	if meta.IsDefined("read_buffer_size") {
		cfg.Session.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("max_resend_rounds") {
		cfg.Session.MaxResendRounds = raw.MaxResendRounds
	}
	if meta.IsDefined("max_sequence") {
		cfg.Session.MaxSequence = raw.MaxSequence
	}
	if meta.IsDefined("duplicate_policy") {
		cfg.Session.DuplicatePolicy = session.NormalizeDuplicatePolicy(session.DuplicatePolicy(raw.DuplicatePolicy))
	}
	if meta.IsDefined("allow_partial") {
		cfg.Session.AllowPartial = raw.AllowPartial
	}

	if meta.IsDefined("backoff", "initial_delay") {
		v, err := parseDuration("backoff.initial_delay", raw.Backoff.InitialDelay)
		if err != nil {
			return Settings{}, err
		}
		cfg.Session.Backoff.InitialDelay = v
	}
	if meta.IsDefined("backoff", "max_delay") {
		v, err := parseDuration("backoff.max_delay", raw.Backoff.MaxDelay)
		if err != nil {
			return Settings{}, err
		}
		cfg.Session.Backoff.MaxDelay = v
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Session.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Session.Backoff.Jitter = raw.Backoff.Jitter
	}

	if err := Validate(cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func Validate(cfg Settings) error {
	if strings.TrimSpace(cfg.Output) == "" {
		return fmt.Errorf("config missing output")
	}
	if err := cfg.Session.Validate(); err != nil {
		return fmt.Errorf("session config invalid: %w", err)
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %v", key, d)
	}
	return d, nil
}
