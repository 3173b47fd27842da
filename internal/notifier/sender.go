package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	logx "jokeline/pkg/logx"
)

var ErrNotConfigured = errors.New("notifier not configured")

// Receipt identifies an accepted message.
type Receipt struct {
	MessageID string
}

type Sender interface {
	Send(ctx context.Context, to, body string) (Receipt, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, body string) (Receipt, error)

func (f SenderFunc) Send(ctx context.Context, to, body string) (Receipt, error) {
	return f(ctx, to, body)
}

// ProviderError is a rejected send as reported by the provider.
type ProviderError struct {
	Status  int // HTTP status
	Code    int // provider error code, 0 if absent
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider rejected message: status %d code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider rejected message: status %d: %s", e.Status, e.Message)
}

// LogSender records messages in the log instead of sending them.
type LogSender struct {
	log logx.Logger
	seq atomic.Uint64
}

func NewLogSender(log logx.Logger) *LogSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, body string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	id := fmt.Sprintf("dry-%06d", s.seq.Add(1))
	s.log.Info("dry-run message", logx.String("to", to), logx.String("id", id), logx.Int("chars", len(body)))
	s.log.Debug("dry-run body", logx.String("id", id), logx.String("body", body))
	return Receipt{MessageID: id}, nil
}
