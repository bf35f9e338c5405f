package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/danmuck/seqfetch/internal/observability"
	"github.com/danmuck/seqfetch/internal/protocol"
	"github.com/danmuck/seqfetch/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

var (
	ErrTransport              = errors.New("session: transport failure")
	ErrIdleTimeout            = errors.New("session: idle timeout")
	ErrGapsRemain             = errors.New("session: gaps remain")
	ErrSequenceLimit          = errors.New("session: sequence above max_sequence")
	ErrArtifactWriterRequired = errors.New("session: artifact writer required")
	ErrAlreadyRun             = errors.New("session: controller already ran")
)

// ArtifactWriter persists the final ordered dataset.
type ArtifactWriter interface {
	Write(packets []protocol.Packet) error
}

// Dialer opens transport connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Option func(*Controller)

func WithDialer(d Dialer) Option {
	return func(c *Controller) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithTransitionHook observes every state change, in order.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Controller) {
		c.onTransition = fn
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// Result summarizes one run.
type Result struct {
	State    State
	Packets  int
	Rounds   int
	Missing  []int32
	Rejected int
}

// Controller drives one bulk fetch and the resend rounds that follow it.
// It owns the packet store and every connection it opens; a controller
// runs once.
type Controller struct {
	cfg          Config
	sink         ArtifactWriter
	dialer       Dialer
	tracker      *Tracker
	frames       *frame.Decoder
	rng          *rand.Rand
	onTransition func(from, to State)

	state    State
	rounds   int
	rejected int
	missing  []int32
}

func NewController(cfg Config, sink ArtifactWriter, opts ...Option) (*Controller, error) {
	if sink == nil {
		return nil, ErrArtifactWriterRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.DuplicatePolicy = NormalizeDuplicatePolicy(cfg.DuplicatePolicy)
	c := &Controller{
		cfg:    cfg,
		sink:   sink,
		dialer: &net.Dialer{Timeout: cfg.ConnectTimeout},
		tracker: NewTracker(TrackerConfig{
			MaxSequence: cfg.MaxSequence,
			Duplicates:  cfg.DuplicatePolicy,
		}),
		frames: frame.NewDecoder(protocol.PacketSize),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Tracker() *Tracker {
	return c.tracker
}

// Run executes the full fetch. On success the artifact has been written and
// the result is in StateDone. Cancelling ctx closes the open connection and
// returns ctx.Err() without writing anything.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	if c.state != StateIdle {
		return c.result(), ErrAlreadyRun
	}
	log.Info().Str("addr", c.cfg.Address()).Msg("fetch started")

	if err := c.bulk(ctx); err != nil {
		return c.abort(err)
	}

	for {
		c.transition(StateGapCheck)
		missing := c.checkGaps()
		if len(missing) == 0 {
			beyond := c.tracker.Beyond()
			if len(beyond) == 0 {
				c.transition(StateComplete)
				break
			}
			cause := fmt.Errorf("%w: max=%d count=%d highest=%d",
				ErrSequenceLimit, c.cfg.MaxSequence, len(beyond), beyond[len(beyond)-1])
			if err := c.giveUp(cause); err != nil {
				return c.abort(err)
			}
			break
		}
		if c.rounds >= c.cfg.MaxResendRounds {
			if err := c.giveUp(gapsRemain(c.rounds, missing)); err != nil {
				return c.abort(err)
			}
			break
		}
		sent, err := c.resend(ctx, missing)
		if err != nil {
			return c.abort(err)
		}
		if !sent {
			if err := c.giveUp(gapsRemain(c.rounds, missing)); err != nil {
				return c.abort(err)
			}
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return c.abort(err)
	}
	c.transition(StateFinalizing)
	if err := c.sink.Write(c.tracker.Snapshot()); err != nil {
		return c.abort(err)
	}
	c.transition(StateDone)
	log.Info().
		Int("packets", c.tracker.Len()).
		Int("rounds", c.rounds).
		Int("rejected", c.rejected).
		Msg("fetch complete")
	return c.result(), nil
}

func (c *Controller) bulk(ctx context.Context) error {
	conn, err := c.connect(ctx, PhaseBulk)
	if err != nil {
		return err
	}
	c.transition(StateBulkRequesting)
	if err := c.send(conn, protocol.BulkRequest()); err != nil {
		_ = conn.Close()
		return err
	}
	c.transition(StateBulkStreaming)
	return c.stream(ctx, conn, PhaseBulk)
}

// resend runs one resend round on a fresh connection. It reports false
// when none of the missing sequences can be carried by a resend request.
func (c *Controller) resend(ctx context.Context, missing []int32) (bool, error) {
	payload := make([]byte, 0, len(missing)*protocol.RequestSize)
	requested := 0
	for _, seq := range missing {
		req, err := protocol.ResendRequest(seq)
		if err != nil {
			log.Warn().Int32("seq", seq).Err(err).Msg("resend request skipped")
			continue
		}
		payload = append(payload, req...)
		requested++
	}
	if requested == 0 {
		return false, nil
	}

	conn, err := c.connect(ctx, PhaseResend)
	if err != nil {
		return false, err
	}
	c.rounds++
	observability.RecordResendRound()
	c.transition(StateResendRequesting)
	log.Info().
		Int("round", c.rounds).
		Int("requested", requested).
		Msg("requesting missing packets")

	if err := c.send(conn, payload); err != nil {
		_ = conn.Close()
		return false, err
	}
	observability.RecordResendRequests(requested)
	// The server answers once the request side is closed.
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			log.Debug().Err(err).Msg("half-close failed")
		}
	}
	c.transition(StateResendStreaming)
	return true, c.stream(ctx, conn, PhaseResend)
}

func (c *Controller) send(conn net.Conn, payload []byte) error {
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrTransport, conn.RemoteAddr(), err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return nil
}

// stream reads conn until the server closes it, feeding every complete
// frame into the tracker. The connection is always closed on return.
func (c *Controller) stream(ctx context.Context, conn net.Conn, phase Phase) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	dec := c.frames
	dec.Reset()
	buf := make([]byte, c.cfg.ReadBufferSize)
	index := 0
	for {
		if c.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			for f := range dec.Feed(buf[:n]) {
				c.consume(phase, index, f)
				index++
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			if rest := dec.Buffered(); rest > 0 {
				c.rejected++
				observability.RecordRejectedFrame(string(phase), "partial_frame")
				log.Warn().
					Str("phase", string(phase)).
					Int("frame", index).
					Int("bytes", rest).
					Msg("discarding partial frame at stream end")
			}
			log.Debug().
				Str("phase", string(phase)).
				Int("frames", index).
				Msg("server closed stream")
			return nil
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: %w: no data from %s for %v", ErrIdleTimeout, ErrTransport, conn.RemoteAddr(), c.cfg.IdleTimeout)
		}
		return fmt.Errorf("%w: read %s: %w", ErrTransport, conn.RemoteAddr(), err)
	}
}

// consume decodes and stores one frame. Bad frames are logged and dropped;
// they never stop the stream.
func (c *Controller) consume(phase Phase, index int, f []byte) {
	p, err := protocol.DecodePacket(f)
	decoded := err == nil
	if decoded {
		err = c.tracker.Record(p)
	}
	if err != nil {
		c.rejected++
		observability.RecordRejectedFrame(string(phase), rejectReason(err))
		event := log.Warn().
			Str("phase", string(phase)).
			Int("frame", index).
			Err(err)
		if decoded {
			event = event.Int32("seq", p.Sequence)
		}
		event.Msg("frame dropped")
		return
	}
	observability.RecordPacket(string(phase))
	log.Trace().
		Str("phase", string(phase)).
		Int32("seq", p.Sequence).
		Str("symbol", p.Symbol).
		Msg("packet stored")
}

func (c *Controller) checkGaps() []int32 {
	if c.tracker.Empty() {
		log.Warn().Msg("no packets received, nothing to reconcile")
	}
	c.missing = c.tracker.Missing()
	observability.SetMissingSequences(len(c.missing))
	if len(c.missing) > 0 {
		log.Info().Int("missing", len(c.missing)).Msg("gaps detected")
		log.Debug().Ints32("sequences", c.missing).Msg("missing sequences")
	}
	return c.missing
}

// giveUp decides what happens when the store cannot be shown complete and
// no further round can change that.
func (c *Controller) giveUp(cause error) error {
	if !c.cfg.AllowPartial {
		return cause
	}
	log.Warn().
		Int("rounds", c.rounds).
		Int("missing", len(c.missing)).
		Err(cause).
		Msg("finalizing partial dataset")
	return nil
}

func gapsRemain(rounds int, missing []int32) error {
	return fmt.Errorf("%w: rounds=%d missing=%d first=%d last=%d",
		ErrGapsRemain, rounds, len(missing), missing[0], missing[len(missing)-1])
}

func (c *Controller) abort(err error) (Result, error) {
	c.transition(StateAborted)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("fetch cancelled")
	} else {
		log.Error().Err(err).Msg("fetch aborted")
	}
	return c.result(), err
}

func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	log.Debug().Stringer("from", from).Stringer("to", to).Msg("session state")
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

func (c *Controller) result() Result {
	return Result{
		State:    c.state,
		Packets:  c.tracker.Len(),
		Rounds:   c.rounds,
		Missing:  append([]int32(nil), c.missing...),
		Rejected: c.rejected,
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrInvalidFrameSize):
		return "invalid_frame_size"
	case errors.Is(err, protocol.ErrMalformedPacket):
		return "malformed_packet"
	case errors.Is(err, ErrDuplicateSequence):
		return "duplicate_sequence"
	default:
		return "unknown"
	}
}
