package session

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/danmuck/seqfetch/internal/protocol"
)

var ErrDuplicateSequence = errors.New("session: duplicate sequence")

// TrackerConfig controls duplicate handling and how far the gap scan reaches.
type TrackerConfig struct {
	MaxSequence int32
	Duplicates  DuplicatePolicy
}

// Tracker is the packet store for one run, keyed by sequence number.
// Entries are inserted or overwritten, never removed.
type Tracker struct {
	mu      sync.RWMutex
	cfg     TrackerConfig
	packets map[int32]protocol.Packet
}

func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.MaxSequence <= 0 {
		cfg.MaxSequence = DefaultConfig().MaxSequence
	}
	cfg.Duplicates = NormalizeDuplicatePolicy(cfg.Duplicates)
	return &Tracker{
		cfg:     cfg,
		packets: make(map[int32]protocol.Packet),
	}
}

// Record stores p, inserting or overwriting by sequence number. Every
// decoded packet is kept, whatever its sequence.
func (t *Tracker) Record(p protocol.Packet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.packets[p.Sequence]; ok && t.cfg.Duplicates == DuplicateReject {
		return fmt.Errorf("%w: seq=%d", ErrDuplicateSequence, p.Sequence)
	}
	t.packets[p.Sequence] = p
	return nil
}

// Missing returns every sequence in [1, max observed] that has not been
// recorded, ascending. The scan stops at MaxSequence. Sequences at or below
// zero are stored but never count as gaps. An empty store has nothing to
// compare against and yields an empty result.
func (t *Tracker) Missing() []int32 {
	keys := t.keys()
	missing := make([]int32, 0)
	next := int32(1)
	for _, seq := range keys {
		if seq < 1 {
			continue
		}
		if seq > t.cfg.MaxSequence {
			for ; next <= t.cfg.MaxSequence; next++ {
				missing = append(missing, next)
			}
			break
		}
		for ; next < seq; next++ {
			missing = append(missing, next)
		}
		next = seq + 1
	}
	return missing
}

// Beyond returns the stored sequences above MaxSequence, ascending. The gap
// scan does not reach them, so a store holding any is never provably
// complete.
func (t *Tracker) Beyond() []int32 {
	if t.cfg.MaxSequence == math.MaxInt32 {
		return []int32{}
	}
	keys := t.keys()
	i, _ := slices.BinarySearch(keys, t.cfg.MaxSequence+1)
	return keys[i:]
}

func (t *Tracker) Get(seq int32) (protocol.Packet, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.packets[seq]
	return p, ok
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.packets)
}

func (t *Tracker) Empty() bool {
	return t.Len() == 0
}

// Snapshot returns the stored packets ordered by sequence.
func (t *Tracker) Snapshot() []protocol.Packet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]protocol.Packet, 0, len(t.packets))
	for _, p := range t.packets {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b protocol.Packet) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return out
}

func (t *Tracker) keys() []int32 {
	t.mu.RLock()
	keys := make([]int32, 0, len(t.packets))
	for seq := range t.packets {
		keys = append(keys, seq)
	}
	t.mu.RUnlock()
	slices.Sort(keys)
	return keys
}
