package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"jokeline/internal/content"
	"jokeline/internal/eventbus"
	"jokeline/internal/observability/tracing"
	logx "jokeline/pkg/logx"
)

// Selector yields one never-sent content item.
type Selector interface {
	SelectUnused(ctx context.Context) (content.Item, error)
}

// Cycle chains content selection and dispatch. At most one cycle runs at a time.
type Cycle struct {
	sel  Selector
	disp *Dispatcher
	bus  eventbus.Bus
	log  logx.Logger

	running atomic.Bool

	mu   sync.Mutex
	last *Report
}

func NewCycle(sel Selector, disp *Dispatcher, bus eventbus.Bus, log logx.Logger) *Cycle {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Discard()
	}
	return &Cycle{sel: sel, disp: disp, bus: bus, log: log}
}

// Run executes one cycle. When content is exhausted or the source fails the
// cycle is skipped: the error is returned, and nothing is sent.
func (c *Cycle) Run(ctx context.Context) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.log.Warn("broadcast cycle skipped: previous still running")
		return Report{}, ErrCycleInFlight
	}
	defer c.running.Store(false)

	id := uuid.NewString()
	log := c.log.With(logx.String("cycle", id))
	ctx, span := tracing.Tracer().Start(ctx, "broadcast.cycle")
	span.SetAttributes(attribute.String("cycle.id", id))
	defer span.End()

	start := time.Now()
	log.Info("broadcast cycle started")

	sctx, sspan := tracing.Tracer().Start(ctx, "broadcast.select")
	item, err := c.sel.SelectUnused(sctx)
	if err != nil {
		sspan.RecordError(err)
		sspan.SetStatus(codes.Error, err.Error())
	} else {
		sspan.SetAttributes(attribute.String("content.id", item.ID))
	}
	sspan.End()
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, content.ErrExhausted):
			reason = "exhausted"
		case errors.Is(err, content.ErrSource):
			reason = "source"
		}
		log.Warn("broadcast cycle skipped", logx.String("reason", reason), logx.Err(err))
		span.SetStatus(codes.Error, reason)
		c.bus.Publish(eventbus.Event{Type: eventbus.BroadcastSkipped, Data: eventbus.BroadcastResult{CycleID: id, Reason: reason}})
		return Report{CycleID: id}, err
	}

	dctx, dspan := tracing.Tracer().Start(ctx, "broadcast.dispatch")
	rep, err := c.disp.Dispatch(dctx, item)
	rep.CycleID = id
	if err != nil {
		dspan.RecordError(err)
		dspan.SetStatus(codes.Error, err.Error())
		dspan.End()
		span.SetStatus(codes.Error, "dispatch")
		log.Error("broadcast dispatch failed", logx.String("content", item.ID), logx.Err(err))
		c.bus.Publish(eventbus.Event{Type: eventbus.BroadcastSkipped, Data: eventbus.BroadcastResult{CycleID: id, ContentID: item.ID, Reason: "store"}})
		return rep, err
	}
	dspan.SetAttributes(
		attribute.Int("broadcast.sent", rep.Sent),
		attribute.Int("broadcast.failed", rep.Failed),
	)
	dspan.End()

	fields := []logx.Field{
		logx.String("content", item.ID),
		logx.Int("total", rep.Total()),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", time.Since(start)),
	}
	if rep.Failed > 0 {
		log.Warn("broadcast cycle finished with failures", fields...)
	} else {
		log.Info("broadcast cycle finished", fields...)
	}

	c.mu.Lock()
	cp := rep
	c.last = &cp
	c.mu.Unlock()

	c.bus.Publish(eventbus.Event{Type: eventbus.BroadcastCompleted, Data: eventbus.BroadcastResult{
		CycleID: id, ContentID: item.ID, Sent: rep.Sent, Failed: rep.Failed,
	}})
	return rep, nil
}

// Last returns the most recent completed report.
func (c *Cycle) Last() (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

// Running reports whether a cycle is in progress.
func (c *Cycle) Running() bool { return c.running.Load() }
