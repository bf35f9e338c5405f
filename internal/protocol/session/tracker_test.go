package session

import (
	"errors"
	"slices"
	"testing"

	"github.com/danmuck/seqfetch/internal/protocol"
	"github.com/danmuck/seqfetch/internal/testutil/testlog"
)

func pkt(seq int32) protocol.Packet {
	return protocol.Packet{Symbol: "AAPL", Side: "B", Quantity: seq * 10, Price: 100 + seq, Sequence: seq}
}

func TestTrackerMissingSingleGap(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{})
	for _, seq := range []int32{5, 1, 4, 2} {
		if err := tr.Record(pkt(seq)); err != nil {
			t.Fatalf("record seq=%d: %v", seq, err)
		}
	}
	if got := tr.Missing(); !slices.Equal(got, []int32{3}) {
		t.Fatalf("unexpected missing=%v", got)
	}
}

func TestTrackerMissingEmptyStore(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{})
	got := tr.Missing()
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got=%v", got)
	}
	if !tr.Empty() {
		t.Fatalf("expected empty tracker")
	}
}

func TestTrackerMissingMultipleGaps(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{})
	for _, seq := range []int32{9, 3, 6} {
		_ = tr.Record(pkt(seq))
	}
	want := []int32{1, 2, 4, 5, 7, 8}
	if got := tr.Missing(); !slices.Equal(got, want) {
		t.Fatalf("unexpected missing got=%v want=%v", got, want)
	}
}

func TestTrackerLastWriteWins(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{Duplicates: DuplicateLastWriteWins})
	first := pkt(2)
	second := pkt(2)
	second.Price = 999
	if err := tr.Record(first); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := tr.Record(second); err != nil {
		t.Fatalf("record duplicate: %v", err)
	}
	got, ok := tr.Get(2)
	if !ok || got.Price != 999 {
		t.Fatalf("expected last write to win, got=%+v ok=%v", got, ok)
	}
	if tr.Len() != 1 {
		t.Fatalf("unexpected len=%d", tr.Len())
	}
}

func TestTrackerRejectDuplicates(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{Duplicates: "REJECT"})
	first := pkt(2)
	second := pkt(2)
	second.Price = 999
	_ = tr.Record(first)
	if err := tr.Record(second); !errors.Is(err, ErrDuplicateSequence) {
		t.Fatalf("expected ErrDuplicateSequence, got %v", err)
	}
	if got, _ := tr.Get(2); got != first {
		t.Fatalf("expected first copy to be kept, got=%+v", got)
	}
}

func TestTrackerStoresEverySequence(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{MaxSequence: 100})
	for _, seq := range []int32{0, -4, 1, 2, 101} {
		if err := tr.Record(pkt(seq)); err != nil {
			t.Fatalf("record seq=%d: %v", seq, err)
		}
	}
	if tr.Len() != 5 {
		t.Fatalf("every decoded packet must be stored, len=%d", tr.Len())
	}
	if got := sequences(tr.Snapshot()); !slices.Equal(got, []int32{-4, 0, 1, 2, 101}) {
		t.Fatalf("unexpected snapshot=%v", got)
	}
	if got := tr.Beyond(); !slices.Equal(got, []int32{101}) {
		t.Fatalf("unexpected beyond=%v", got)
	}
}

func TestTrackerMissingIgnoresNonPositive(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{})
	for _, seq := range []int32{-3, 0, 1, 3} {
		_ = tr.Record(pkt(seq))
	}
	if got := tr.Missing(); !slices.Equal(got, []int32{2}) {
		t.Fatalf("unexpected missing=%v", got)
	}
	if got := tr.Beyond(); len(got) != 0 {
		t.Fatalf("unexpected beyond=%v", got)
	}
}

func TestTrackerMissingStopsAtMaxSequence(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{MaxSequence: 6})
	for _, seq := range []int32{1, 3, 50, 9} {
		_ = tr.Record(pkt(seq))
	}
	if got := tr.Missing(); !slices.Equal(got, []int32{2, 4, 5, 6}) {
		t.Fatalf("unexpected missing=%v", got)
	}
	if got := tr.Beyond(); !slices.Equal(got, []int32{9, 50}) {
		t.Fatalf("unexpected beyond=%v", got)
	}
}

func TestTrackerSnapshotOrdered(t *testing.T) {
	testlog.Start(t)
	tr := NewTracker(TrackerConfig{})
	for _, seq := range []int32{7, 3, 11, 1} {
		_ = tr.Record(pkt(seq))
	}
	snap := tr.Snapshot()
	got := make([]int32, 0, len(snap))
	for _, p := range snap {
		got = append(got, p.Sequence)
	}
	if !slices.Equal(got, []int32{1, 3, 7, 11}) {
		t.Fatalf("unexpected snapshot order=%v", got)
	}
}
