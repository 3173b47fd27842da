package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"jokeline/internal/content"
	"jokeline/internal/eventbus"
	"jokeline/internal/notifier"
	"jokeline/internal/storage"
	logx "jokeline/pkg/logx"
)

type sent struct {
	to, body string
}

// recordingSender captures sends and fails for addresses in fail.
type recordingSender struct {
	mu    sync.Mutex
	sent  []sent
	fail  map[string]bool
	panic map[string]bool
}

func (s *recordingSender) Send(ctx context.Context, to, body string) (notifier.Receipt, error) {
	if s.panic[to] {
		panic("provider exploded")
	}
	if s.fail[to] {
		return notifier.Receipt{}, errors.New("undeliverable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{to, body})
	return notifier.Receipt{MessageID: "SM" + to}, nil
}

func seed(t *testing.T, addrs ...string) storage.Store {
	t.Helper()
	st := storage.NewMemory()
	for _, a := range addrs {
		if _, err := st.InsertSubscriber(context.Background(), a); err != nil {
			t.Fatalf("seed %s: %v", a, err)
		}
		// distinct created_at keeps list order deterministic
		time.Sleep(2 * time.Millisecond)
	}
	return st
}

func TestFormatMessage(t *testing.T) {
	d := time.Date(2024, time.March, 5, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		header string
		want   string
	}{
		{"Dad joke for", "Dad joke for 3/5\n\nwhy?"},
		{"  Dad joke for ", "Dad joke for 3/5\n\nwhy?"},
		{"", "3/5\n\nwhy?"},
	}
	for _, tt := range tests {
		if got := FormatMessage(tt.header, d, "why?"); got != tt.want {
			t.Fatalf("FormatMessage(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestFormatMessageUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("US/Pacific")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 01:00 UTC on the 6th is still the 5th in Pacific time.
	utc := time.Date(2024, time.March, 6, 1, 0, 0, 0, time.UTC)
	if got := FormatMessage("x", utc.In(loc), "b"); !strings.HasPrefix(got, "x 3/5") {
		t.Fatalf("got %q", got)
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	st := seed(t, "+10000000001", "+10000000002", "+10000000003")
	snd := &recordingSender{fail: map[string]bool{"+10000000002": true}}
	d := NewDispatcher(st, snd, Config{Header: "Dad joke for", Workers: 2}, logx.Logger{})

	rep, err := d.Dispatch(context.Background(), content.Item{ID: "j1", Body: "why"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if rep.Sent != 2 || rep.Failed != 1 {
		t.Fatalf("sent=%d failed=%d, want 2/1", rep.Sent, rep.Failed)
	}
	want := []Status{StatusSent, StatusFailed, StatusSent}
	for i, o := range rep.Outcomes {
		if o.Status != want[i] {
			t.Fatalf("outcome %d = %+v, want %s", i, o, want[i])
		}
	}
	if rep.Outcomes[1].Err == nil {
		t.Fatalf("expected error on failed outcome")
	}
	if rep.Outcomes[0].MessageID != "SM+10000000001" {
		t.Fatalf("MessageID = %q", rep.Outcomes[0].MessageID)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	st := seed(t, "+10000000001", "+10000000002")
	snd := &recordingSender{panic: map[string]bool{"+10000000001": true}}
	d := NewDispatcher(st, snd, Config{}, logx.Logger{})

	rep, err := d.Dispatch(context.Background(), content.Item{ID: "j1", Body: "b"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if rep.Sent != 1 || rep.Failed != 1 {
		t.Fatalf("sent=%d failed=%d, want 1/1", rep.Sent, rep.Failed)
	}
}

func TestDispatchCanceledMarksRemainingFailed(t *testing.T) {
	st := seed(t, "+10000000001", "+10000000002")
	snd := &recordingSender{}
	d := NewDispatcher(st, snd, Config{}, logx.Logger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := d.Dispatch(ctx, content.Item{ID: "j1", Body: "b"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if rep.Failed != 2 {
		t.Fatalf("failed = %d, want 2", rep.Failed)
	}
	for _, o := range rep.Outcomes {
		if !errors.Is(o.Err, context.Canceled) {
			t.Fatalf("outcome err = %v, want context.Canceled", o.Err)
		}
	}
}

func TestDispatchNoSubscribers(t *testing.T) {
	d := NewDispatcher(storage.NewMemory(), &recordingSender{}, Config{}, logx.Logger{})
	rep, err := d.Dispatch(context.Background(), content.Item{ID: "j1", Body: "b"})
	if err != nil || rep.Total() != 0 {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
}

type fixedSelector struct {
	item content.Item
	err  error
	wait chan struct{}
}

func (s *fixedSelector) SelectUnused(context.Context) (content.Item, error) {
	if s.wait != nil {
		<-s.wait
	}
	return s.item, s.err
}

func TestCycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := seed(t, "+11234567890")
	src := content.SourceFunc(func(context.Context) (content.Item, error) {
		return content.Item{ID: "j1", Body: "why did the chicken cross the road?"}, nil
	})
	sel := content.NewSelector(src, st, 25, logx.Logger{})
	snd := &recordingSender{}
	d := NewDispatcher(st, snd, Config{Header: "Dad joke for", Location: time.UTC}, logx.Logger{})
	d.now = func() time.Time { return time.Date(2024, time.March, 5, 18, 0, 0, 0, time.UTC) }
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	rep, err := NewCycle(sel, d, bus, logx.Logger{}).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.CycleID == "" || rep.ContentID != "j1" || rep.Sent != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(snd.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(snd.sent))
	}
	msg := snd.sent[0]
	if msg.to != "+11234567890" {
		t.Fatalf("to = %q", msg.to)
	}
	if !strings.Contains(msg.body, "3/5") || !strings.Contains(msg.body, "why") {
		t.Fatalf("body = %q", msg.body)
	}
	if _, ok, _ := st.FindContent(ctx, "j1"); !ok {
		t.Fatalf("ledger missing j1")
	}
	select {
	case e := <-events:
		if e.Type != eventbus.BroadcastCompleted {
			t.Fatalf("event = %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("no completion event")
	}

	// Second cycle sees j1 in the ledger and skips.
	_, err = NewCycle(content.NewSelector(src, st, 3, logx.Logger{}), d, bus, logx.Logger{}).Run(ctx)
	if !errors.Is(err, content.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if len(snd.sent) != 1 {
		t.Fatalf("skipped cycle must not send, got %d messages", len(snd.sent))
	}
}

func TestCycleSkipsOnSourceError(t *testing.T) {
	st := seed(t, "+11234567890")
	snd := &recordingSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	sel := &fixedSelector{err: content.ErrSource}
	_, err := NewCycle(sel, NewDispatcher(st, snd, Config{}, logx.Logger{}), bus, logx.Logger{}).Run(context.Background())
	if !errors.Is(err, content.ErrSource) {
		t.Fatalf("expected ErrSource, got %v", err)
	}
	if len(snd.sent) != 0 {
		t.Fatalf("expected no sends")
	}
	e := <-events
	res, _ := e.Data.(eventbus.BroadcastResult)
	if e.Type != eventbus.BroadcastSkipped || res.Reason != "source" {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestCycleSingleFlight(t *testing.T) {
	st := seed(t)
	sel := &fixedSelector{item: content.Item{ID: "j1", Body: "b"}, wait: make(chan struct{})}
	c := NewCycle(sel, NewDispatcher(st, &recordingSender{}, Config{}, logx.Logger{}), nil, logx.Logger{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for !c.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("first cycle never started")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := c.Run(context.Background()); !errors.Is(err, ErrCycleInFlight) {
		t.Fatalf("expected ErrCycleInFlight, got %v", err)
	}
	close(sel.wait)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if _, ok := c.Last(); !ok {
		t.Fatalf("expected last report")
	}
}

func TestCycleEmitsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	st := seed(t, "+11234567890")
	sel := &fixedSelector{item: content.Item{ID: "j1", Body: "b"}}
	c := NewCycle(sel, NewDispatcher(st, &recordingSender{}, Config{}, logx.Logger{}), nil, logx.Logger{})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	names := map[string]bool{}
	for _, s := range sr.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{"broadcast.cycle", "broadcast.select", "broadcast.dispatch"} {
		if !names[want] {
			t.Fatalf("missing span %q (got %v)", want, names)
		}
	}
}
