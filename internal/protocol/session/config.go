package session

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidAddress         = errors.New("session: invalid server address")
	ErrInvalidDuplicatePolicy = errors.New("session: invalid duplicate policy")
	ErrInvalidLimit           = errors.New("session: invalid limit")
)

// DuplicatePolicy decides what the tracker does with a repeated sequence.
type DuplicatePolicy string

const (
	DuplicateLastWriteWins DuplicatePolicy = "last-write-wins"
	DuplicateReject        DuplicatePolicy = "reject"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport and recovery defaults for one fetch run.
type Config struct {
	Host               string
	Port               int
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ReadBufferSize     int
	MaxConnectAttempts int
	MaxResendRounds    int
	MaxSequence        int32
	DuplicatePolicy    DuplicatePolicy
	AllowPartial       bool
	Backoff            BackoffConfig
}

// DefaultConfig matches the feed server's well-known endpoint.
func DefaultConfig() Config {
	return Config{
		Host:               "localhost",
		Port:               3000,
		ConnectTimeout:     5 * time.Second,
		WriteTimeout:       5 * time.Second,
		IdleTimeout:        30 * time.Second,
		ReadBufferSize:     4096,
		MaxConnectAttempts: 3,
		MaxResendRounds:    5,
		MaxSequence:        65535,
		DuplicatePolicy:    DuplicateLastWriteWins,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig. IdleTimeout,
// MaxResendRounds and AllowPartial keep their zero values.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.Host) == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = d.MaxConnectAttempts
	}
	if c.MaxSequence <= 0 {
		c.MaxSequence = d.MaxSequence
	}
	if strings.TrimSpace(string(c.DuplicatePolicy)) == "" {
		c.DuplicatePolicy = d.DuplicatePolicy
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.Multiplier == 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidAddress)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port=%d", ErrInvalidAddress, c.Port)
	}
	switch NormalizeDuplicatePolicy(c.DuplicatePolicy) {
	case DuplicateLastWriteWins, DuplicateReject:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDuplicatePolicy, c.DuplicatePolicy)
	}
	if c.MaxResendRounds < 0 {
		return fmt.Errorf("%w: max_resend_rounds=%d", ErrInvalidLimit, c.MaxResendRounds)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle_timeout=%v", ErrInvalidLimit, c.IdleTimeout)
	}
	return nil
}

// Address returns the dial target in host:port form.
func (c Config) Address() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(c.Port))
}

func NormalizeDuplicatePolicy(p DuplicatePolicy) DuplicatePolicy {
	if strings.TrimSpace(string(p)) == "" {
		return DuplicateLastWriteWins
	}
	return DuplicatePolicy(strings.ToLower(strings.TrimSpace(string(p))))
}
