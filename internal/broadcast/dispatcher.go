package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jokeline/internal/content"
	"jokeline/internal/notifier"
	"jokeline/internal/storage"
	logx "jokeline/pkg/logx"
)

// Dispatcher fans one message out to all subscribers over a bounded worker pool.
type Dispatcher struct {
	subs   storage.SubscriberStore
	sender notifier.Sender
	log    logx.Logger
	now    func() time.Time

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func NewDispatcher(subs storage.SubscriberStore, sender notifier.Sender, cfg Config, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{subs: subs, sender: sender, log: log, now: time.Now}
	d.Apply(cfg)
	return d
}

// Apply swaps settings for the next dispatch. A running dispatch keeps its snapshot.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = lim
	d.mu.Unlock()
}

type task struct {
	idx  int
	addr string
}

// Dispatch sends item to every subscriber, one attempt each. Only a failure to
// list subscribers is returned as an error; per-recipient failures land in the
// report.
func (d *Dispatcher) Dispatch(ctx context.Context, item content.Item) (Report, error) {
	d.mu.Lock()
	cfg, lim := d.cfg, d.limiter
	d.mu.Unlock()

	start := d.now()
	subs, err := d.subs.ListSubscribers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list subscribers: %w", err)
	}

	body := FormatMessage(cfg.Header, start.In(cfg.Location), item.Body)
	rep := Report{ContentID: item.ID, StartedAt: start, Outcomes: make([]Outcome, len(subs))}

	workers := cfg.Workers
	if workers > len(subs) {
		workers = len(subs)
	}
	tasks := make(chan task)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for t := range tasks {
				rep.Outcomes[t.idx] = d.sendOne(ctx, lim, cfg.SendTimeout, t.addr, body)
			}
		}()
	}
	for i, s := range subs {
		tasks <- task{idx: i, addr: s.Address}
	}
	close(tasks)
	wg.Wait()

	for _, o := range rep.Outcomes {
		if o.Status == StatusSent {
			rep.Sent++
		} else {
			rep.Failed++
		}
	}
	rep.Took = d.now().Sub(start)
	return rep, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, lim *rate.Limiter, timeout time.Duration, addr, body string) (out Outcome) {
	out = Outcome{Address: addr, Status: StatusFailed}
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Address: addr, Status: StatusFailed, Err: fmt.Errorf("panic: %v", r)}
			d.log.Error("panic in send", logx.String("to", addr), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			out.Err = err
			return out
		}
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rc, err := d.sender.Send(sctx, addr, body)
	if err != nil {
		out.Err = err
		d.log.Warn("send failed", logx.String("to", addr), logx.Err(err))
		return out
	}
	out.Status = StatusSent
	out.MessageID = rc.MessageID
	d.log.Debug("message sent", logx.String("to", addr), logx.String("sid", rc.MessageID))
	return out
}
