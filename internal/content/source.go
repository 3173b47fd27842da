// Package content fetches candidate broadcast items and picks one that has
// never been sent before.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrSource marks a failed or malformed fetch from the content source.
	ErrSource = errors.New("content source")
	// ErrExhausted means every attempt within the retry cap returned seen content.
	ErrExhausted = errors.New("content exhausted")
)

// Item is one candidate piece of content.
type Item struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// Source returns one candidate item per call. Repeats are allowed.
type Source interface {
	Fetch(ctx context.Context) (Item, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Item, error)

func (f SourceFunc) Fetch(ctx context.Context) (Item, error) { return f(ctx) }

// HTTPSource reads icanhazdadjoke-compatible JSON: {"id", "joke", "status"}.
type HTTPSource struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

type jokeResponse struct {
	ID     string `json:"id"`
	Joke   string `json:"joke"`
	Status int    `json:"status"`
}

const maxBody = 64 << 10

func (s *HTTPSource) Fetch(ctx context.Context) (Item, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrSource, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return Item{}, fmt.Errorf("%w: status %d", ErrSource, resp.StatusCode)
	}
	var jr jokeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&jr); err != nil {
		return Item{}, fmt.Errorf("%w: decode: %v", ErrSource, err)
	}
	if jr.Status != 0 && jr.Status != http.StatusOK {
		return Item{}, fmt.Errorf("%w: body status %d", ErrSource, jr.Status)
	}
	item := Item{ID: strings.TrimSpace(jr.ID), Body: strings.TrimSpace(jr.Joke)}
	if item.ID == "" || item.Body == "" {
		return Item{}, fmt.Errorf("%w: missing id or body", ErrSource)
	}
	return item, nil
}
