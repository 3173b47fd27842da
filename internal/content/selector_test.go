package content

import (
	"context"
	"errors"
	"testing"

	"jokeline/internal/storage"
	logx "jokeline/pkg/logx"
)

// seqSource returns items in order and counts calls.
type seqSource struct {
	items []Item
	calls int
}

func (s *seqSource) Fetch(context.Context) (Item, error) {
	i := s.items[s.calls%len(s.items)]
	s.calls++
	return i, nil
}

func TestSelectUnusedSkipsSeen(t *testing.T) {
	ctx := context.Background()
	x := Item{ID: "x", Body: "joke x"}
	y := Item{ID: "y", Body: "joke y"}
	src := &seqSource{items: []Item{x, x, y}}
	ledger := storage.NewMemory()
	sel := NewSelector(src, ledger, 25, logx.Logger{})

	first, err := sel.SelectUnused(ctx)
	if err != nil {
		t.Fatalf("first select: %v", err)
	}
	if first != x {
		t.Fatalf("first = %+v, want x", first)
	}
	second, err := sel.SelectUnused(ctx)
	if err != nil {
		t.Fatalf("second select: %v", err)
	}
	if second != y {
		t.Fatalf("second = %+v, want y", second)
	}
	if src.calls != 3 {
		t.Fatalf("expected 3 fetches, got %d", src.calls)
	}
	for _, id := range []string{"x", "y"} {
		if _, ok, _ := ledger.FindContent(ctx, id); !ok {
			t.Fatalf("ledger missing %q", id)
		}
	}
}

func TestSelectUnusedExhaustsAfterCap(t *testing.T) {
	tests := []int{1, 3, 25}
	for _, limit := range tests {
		ctx := context.Background()
		ledger := storage.NewMemory()
		if _, err := ledger.RecordContent(ctx, "x"); err != nil {
			t.Fatalf("seed: %v", err)
		}
		src := &seqSource{items: []Item{{ID: "x", Body: "old"}}}
		sel := NewSelector(src, ledger, limit, logx.Logger{})

		_, err := sel.SelectUnused(ctx)
		if !errors.Is(err, ErrExhausted) {
			t.Fatalf("limit %d: expected ErrExhausted, got %v", limit, err)
		}
		if src.calls != limit {
			t.Fatalf("limit %d: expected %d fetches, got %d", limit, limit, src.calls)
		}
	}
}

func TestSelectUnusedDefaultCap(t *testing.T) {
	sel := NewSelector(&seqSource{}, storage.NewMemory(), 0, logx.Logger{})
	if got := sel.MaxAttempts(); got != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts = %d, want %d", got, DefaultMaxAttempts)
	}
	sel.SetMaxAttempts(7)
	if got := sel.MaxAttempts(); got != 7 {
		t.Fatalf("MaxAttempts = %d, want 7", got)
	}
}

func TestSelectUnusedSourceError(t *testing.T) {
	calls := 0
	src := SourceFunc(func(context.Context) (Item, error) {
		calls++
		return Item{}, errors.New("boom")
	})
	sel := NewSelector(src, storage.NewMemory(), 5, logx.Logger{})
	_, err := sel.SelectUnused(context.Background())
	if !errors.Is(err, ErrSource) {
		t.Fatalf("expected ErrSource, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected loop to stop after first failure, got %d calls", calls)
	}
}

// racingLedger reports unseen on lookup but loses the record race once.
type racingLedger struct {
	storage.ContentLedger
	lost bool
}

func (l *racingLedger) RecordContent(ctx context.Context, id string) (bool, error) {
	if !l.lost {
		l.lost = true
		_, _ = l.ContentLedger.RecordContent(ctx, id)
		return false, nil
	}
	return l.ContentLedger.RecordContent(ctx, id)
}

func TestSelectUnusedLostRaceRetries(t *testing.T) {
	src := &seqSource{items: []Item{{ID: "x", Body: "a"}, {ID: "y", Body: "b"}}}
	ledger := &racingLedger{ContentLedger: storage.NewMemory()}
	sel := NewSelector(src, ledger, 5, logx.Logger{})

	got, err := sel.SelectUnused(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.ID != "y" {
		t.Fatalf("expected y after lost race, got %+v", got)
	}
}

type brokenLedger struct{ storage.ContentLedger }

var errLedger = errors.New("ledger down")

func (brokenLedger) FindContent(context.Context, string) (storage.LedgerEntry, bool, error) {
	return storage.LedgerEntry{}, false, errLedger
}

func TestSelectUnusedLedgerError(t *testing.T) {
	src := &seqSource{items: []Item{{ID: "x", Body: "a"}}}
	sel := NewSelector(src, brokenLedger{}, 5, logx.Logger{})
	_, err := sel.SelectUnused(context.Background())
	if !errors.Is(err, errLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatalf("ledger error must not read as exhaustion")
	}
}
