package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jokeline/internal/eventbus"
	"jokeline/internal/storage"
	logx "jokeline/pkg/logx"
)

const addr = "+11234567890"

func newTestRouter(t *testing.T) (*Router, storage.Store, eventbus.Bus) {
	t.Helper()
	st := storage.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	bus := eventbus.New()
	return NewRouter(st, Options{Bus: bus}, logx.Logger{}), st, bus
}

func count(t *testing.T, st storage.SubscriberStore) int {
	t.Helper()
	list, err := st.ListSubscribers(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return len(list)
}

func TestClassify(t *testing.T) {
	kw := DefaultKeywords()
	tests := []struct {
		in   string
		want Command
	}{
		{"dad", CommandSubscribe},
		{"  DAD \n", CommandSubscribe},
		{"stop", CommandUnsubscribe},
		{"StopAll", CommandUnsubscribe},
		{"unsubscribe", CommandUnsubscribe},
		{"cancel", CommandUnsubscribe},
		{"end", CommandUnsubscribe},
		{"quit", CommandUnsubscribe},
		{"help", CommandHelp},
		{"info", CommandHelp},
		{"dad joke please", CommandHelp},
		{"", CommandHelp},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := kw.Classify(Normalize(tt.in)); got != tt.want {
				t.Fatalf("Classify(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddressFormat(t *testing.T) {
	f := AddressFormat{Prefix: "+1", Length: 12}
	tests := []struct {
		in   string
		want bool
	}{
		{"+11234567890", true},
		{"+1123456789", false},
		{"+112345678901", false},
		{"+441234567890", false},
		{"011234567890", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := f.Valid(tt.in); got != tt.want {
			t.Fatalf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHandleStateTable(t *testing.T) {
	d := DefaultReplies()
	tests := []struct {
		name      string
		present   bool
		text      string
		wantReply string
		wantAfter bool
	}{
		{"absent subscribe", false, "dad", d.Welcome, true},
		{"absent unsubscribe", false, "stop", d.Help, false},
		{"absent other", false, "hello", d.Help, false},
		{"absent help", false, "help", d.Help, false},
		{"present subscribe", true, "DAD", d.AlreadySubscribed, true},
		{"present unsubscribe", true, "stop", d.Unsubscribed, false},
		{"present other", true, "lol", d.Help, true},
		{"present help", true, "info", d.Help, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st, _ := newTestRouter(t)
			ctx := context.Background()
			if tt.present {
				if _, err := st.InsertSubscriber(ctx, addr); err != nil {
					t.Fatalf("seed: %v", err)
				}
			}
			got, err := r.Handle(ctx, addr, tt.text)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if !got.OK || got.Text != tt.wantReply {
				t.Fatalf("reply = %+v, want %q", got, tt.wantReply)
			}
			_, present, _ := st.FindSubscriber(ctx, addr)
			if present != tt.wantAfter {
				t.Fatalf("present after = %v, want %v", present, tt.wantAfter)
			}
		})
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r, st, _ := newTestRouter(t)
	ctx := context.Background()

	first, err := r.Handle(ctx, addr, "dad")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := r.Handle(ctx, addr, "dad")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Text != DefaultReplies().Welcome {
		t.Fatalf("first reply = %q", first.Text)
	}
	if second.Text != DefaultReplies().AlreadySubscribed {
		t.Fatalf("second reply = %q", second.Text)
	}
	if n := count(t, st); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
}

func TestUnsubscribeAbsentIsNoop(t *testing.T) {
	r, st, _ := newTestRouter(t)
	got, err := r.Handle(context.Background(), addr, "stop")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got.Text != DefaultReplies().Help {
		t.Fatalf("reply = %q", got.Text)
	}
	if n := count(t, st); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func TestRoundTrip(t *testing.T) {
	r, st, _ := newTestRouter(t)
	ctx := context.Background()
	for _, text := range []string{"dad", "stop"} {
		if _, err := r.Handle(ctx, addr, text); err != nil {
			t.Fatalf("Handle(%q): %v", text, err)
		}
	}
	if n := count(t, st); n != 0 {
		t.Fatalf("expected empty store after round trip, got %d", n)
	}
}

func TestInvalidAddressIsSilent(t *testing.T) {
	r, st, _ := newTestRouter(t)
	ctx := context.Background()
	for _, from := range []string{"+1123", "+441234567890", "", "1234567890123"} {
		for _, text := range []string{"dad", "stop", "help", "x"} {
			got, err := r.Handle(ctx, from, text)
			if err != nil {
				t.Fatalf("Handle(%q,%q): %v", from, text, err)
			}
			if got.OK || got.Text != "" {
				t.Fatalf("Handle(%q,%q) replied %+v", from, text, got)
			}
		}
	}
	if n := count(t, st); n != 0 {
		t.Fatalf("expected no mutation, got %d subscribers", n)
	}
}

func TestConcurrentDuplicateSubscribes(t *testing.T) {
	r, st, _ := newTestRouter(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	welcomes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Handle(ctx, addr, "dad")
			if err != nil {
				t.Errorf("Handle: %v", err)
				return
			}
			if got.Text == DefaultReplies().Welcome {
				mu.Lock()
				welcomes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if welcomes != 1 {
		t.Fatalf("expected exactly one welcome, got %d", welcomes)
	}
	if n := count(t, st); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
}

func TestHandlePublishesEvents(t *testing.T) {
	r, _, bus := newTestRouter(t)
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	ctx := context.Background()

	_, _ = r.Handle(ctx, addr, "dad")
	_, _ = r.Handle(ctx, addr, "stop")

	want := []string{eventbus.SubscriptionAdded, eventbus.SubscriptionRemoved}
	for _, w := range want {
		select {
		case e := <-ch:
			if e.Type != w {
				t.Fatalf("event = %q, want %q", e.Type, w)
			}
			if c, ok := e.Data.(eventbus.SubscriptionChange); !ok || c.Address != addr {
				t.Fatalf("unexpected payload %+v", e.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %q", w)
		}
	}
}

type failingStore struct{ storage.SubscriberStore }

var errDown = errors.New("store down")

func (failingStore) FindSubscriber(context.Context, string) (storage.Subscriber, bool, error) {
	return storage.Subscriber{}, false, errDown
}

func TestStoreFailurePropagates(t *testing.T) {
	r := NewRouter(failingStore{}, Options{}, logx.Logger{})
	got, err := r.Handle(context.Background(), addr, "dad")
	if !errors.Is(err, errDown) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if got.OK {
		t.Fatalf("expected no reply on failure, got %+v", got)
	}
}

func TestSetKeywords(t *testing.T) {
	r, st, _ := newTestRouter(t)
	r.SetKeywords(Keywords{Subscribe: "pun", OptOut: []string{"stop"}})
	ctx := context.Background()
	got, err := r.Handle(ctx, addr, "pun")
	if err != nil || got.Text != DefaultReplies().Welcome {
		t.Fatalf("reply = %+v err=%v", got, err)
	}
	if n := count(t, st); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
}
