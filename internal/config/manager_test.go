package config

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestManagerReloadPublishesValidatedConfig(t *testing.T) {
	p := writeFile(t, "jokeline.json", `{"content": {"retry_max": 5}}`)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// unchanged content is not republished
	if m.reload(context.Background()) {
		t.Fatal("reload published an unchanged config")
	}

	if err := os.WriteFile(p, []byte(`{"content": {"retry_max": 6}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if !m.reload(context.Background()) {
		t.Fatal("reload did not publish a changed config")
	}
	got := <-sub
	if got.Content.RetryMax != 6 || m.Get().Content.RetryMax != 6 {
		t.Fatalf("retry_max = %d, want 6", got.Content.RetryMax)
	}

	m.SetValidator(func(context.Context, *Config) error { return errors.New("nope") })
	if err := os.WriteFile(p, []byte(`{"content": {"retry_max": 8}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if m.reload(context.Background()) {
		t.Fatal("rejected config was published")
	}
	if m.Get().Content.RetryMax != 6 {
		t.Fatalf("rejected config was committed")
	}
}
