package session

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/seqfetch/internal/observability"
	"github.com/rs/zerolog/log"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// connect dials the feed server, retrying up to MaxConnectAttempts times.
func (c *Controller) connect(ctx context.Context, phase Phase) (net.Conn, error) {
	addr := c.cfg.Address()
	for attempt := 1; ; attempt++ {
		conn, err := c.dialer.DialContext(ctx, "tcp", addr)
		observability.RecordConnectAttempt(string(phase), err == nil)
		if err == nil {
			log.Debug().
				Str("phase", string(phase)).
				Str("addr", addr).
				Int("attempt", attempt).
				Msg("connected")
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().
			Str("phase", string(phase)).
			Str("addr", addr).
			Int("attempt", attempt).
			Err(err).
			Msg("dial failed")
		if attempt >= c.cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("%w: dial %s after %d attempts: %w", ErrTransport, addr, attempt, err)
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Controller) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
