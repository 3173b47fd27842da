// Package app wires the store, the subscription router, the broadcast cycle,
// the webhook server, and the scheduler into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"jokeline/internal/broadcast"
	"jokeline/internal/config"
	"jokeline/internal/content"
	"jokeline/internal/eventbus"
	"jokeline/internal/notifier"
	"jokeline/internal/observability/tracing"
	"jokeline/internal/runtime/supervisor"
	"jokeline/internal/storage"
	"jokeline/internal/subscription"
	"jokeline/internal/task/scheduler"
	"jokeline/internal/transport/webhook"
	logx "jokeline/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	selector *content.Selector
	disp     *broadcast.Dispatcher
	cycle    *broadcast.Cycle
	router   *subscription.Router
	server   *webhook.Server
	sched    *scheduler.Service

	traceOnce     sync.Once
	traceShutdown func(context.Context) error

	shutdownTimeout time.Duration
	notify          bool
}

type options struct {
	sender notifier.Sender
	source content.Source
	notify bool
}

type Option func(*options)

// WithSender replaces the configured SMS provider.
func WithSender(s notifier.Sender) Option { return func(o *options) { o.sender = s } }

// WithSource replaces the configured content source.
func WithSource(s content.Source) Option { return func(o *options) { o.source = s } }

// WithSystemdNotify toggles sd_notify READY/STOPPING messages (on by default).
func WithSystemdNotify(enabled bool) Option { return func(o *options) { o.notify = enabled } }

// New loads and validates the config, then connects the store. A store that
// cannot be reached fails here, before anything listens.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	o := options{notify: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return ValidateConfig(c) })

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	a := &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logs,
		bus:    eventbus.New(),
		store:  store,
		notify: o.notify,
	}
	if err := a.build(cfg, o, root); err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, o options, root logx.Logger) error {
	source := o.source
	if source == nil {
		fetchTimeout, err := config.ParseDurationOrDefault("content.fetch_timeout", cfg.Content.FetchTimeout, 10*time.Second)
		if err != nil {
			return err
		}
		source = &content.HTTPSource{
			URL:       cfg.Content.SourceURL,
			UserAgent: cfg.Content.UserAgent,
			Timeout:   fetchTimeout,
		}
	}
	a.selector = content.NewSelector(source, a.store, cfg.Content.RetryMax, root.With(logx.String("comp", "content")))

	sender := o.sender
	if sender == nil {
		nlog := root.With(logx.String("comp", "notifier"))
		if cfg.Messaging.DryRun {
			sender = notifier.NewLogSender(nlog)
		} else {
			tw, err := notifier.NewTwilioSender(notifier.TwilioConfig{
				BaseURL:    cfg.Messaging.BaseURL,
				AccountSID: cfg.Messaging.AccountSID,
				AuthToken:  cfg.Messaging.AuthToken,
				From:       cfg.Messaging.From,
			}, nil, nlog)
			if err != nil {
				return err
			}
			sender = tw
		}
	}

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return err
	}
	blog := root.With(logx.String("comp", "broadcast"))
	a.disp = broadcast.NewDispatcher(a.store, sender, bcfg, blog)
	a.cycle = broadcast.NewCycle(a.selector, a.disp, a.bus, blog)

	a.router = subscription.NewRouter(a.store, subscription.Options{
		Keywords: mapKeywords(cfg),
		Format: subscription.AddressFormat{
			Prefix: cfg.Messaging.CountryPrefix,
			Length: cfg.Messaging.AddressLength,
		},
		Bus: a.bus,
	}, root.With(logx.String("comp", "subscription")))

	hlog := root.With(logx.String("comp", "http"))
	scfg, err := mapServerConfig(cfg)
	if err != nil {
		return err
	}
	a.server = webhook.NewServer(scfg, webhook.NewRouter(a.router, a.store, mapWebhookOptions(cfg), hlog), hlog)
	a.shutdownTimeout = config.MustDuration(cfg.HTTP.ShutdownTimeout, 5*time.Second)

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Schedule.Timezone}, root.With(logx.String("comp", "scheduler")))
	if cfg.Schedule.Enabled {
		spec, timeout, err := ScheduleSpec(cfg)
		if err != nil {
			return err
		}
		if err := a.sched.Add(broadcastJob, spec, timeout, a.runScheduled); err != nil {
			return err
		}
	}
	return nil
}

// Router returns the subscription router. Exposed for tests and tooling.
func (a *App) Router() *subscription.Router { return a.router }

// Scheduler returns the scheduler service.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Store returns the opened store.
func (a *App) Store() storage.Store { return a.store }

// Bus returns the process event bus.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Config returns the committed config.
func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Addr returns the webhook listener address (the bound one after Start).
func (a *App) Addr() string { return a.server.Addr() }

func (a *App) runScheduled(ctx context.Context) error {
	_, err := a.cycle.Run(ctx)
	if errors.Is(err, broadcast.ErrCycleInFlight) || errors.Is(err, content.ErrExhausted) {
		// already logged by the cycle; not a scheduler failure
		return nil
	}
	return err
}

// RunOnce runs a single broadcast cycle now.
func (a *App) RunOnce(ctx context.Context) (broadcast.Report, error) {
	if err := a.startTracing(ctx); err != nil {
		a.log.Warn("tracing setup failed", logx.Err(err))
	}
	return a.cycle.Run(ctx)
}

func (a *App) startTracing(ctx context.Context) (err error) {
	a.traceOnce.Do(func() {
		cfg := a.cfgm.Get()
		a.traceShutdown, err = tracing.Setup(ctx, tracing.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
		})
	})
	return err
}

// Start binds the listener, starts background loops, and reports readiness.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	if err := a.startTracing(ctx); err != nil {
		a.log.Warn("tracing setup failed", logx.Err(err))
	}
	if err := a.server.Listen(); err != nil {
		return fmt.Errorf("listen %s: %w", a.server.Addr(), err)
	}

	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	a.sup.Go("http.serve", a.server.Serve)
	a.sched.Start(a.sup.Context())

	events, unsubscribe := a.bus.Subscribe(64)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsubscribe()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				if newCfg == nil {
					continue
				}
				// drain to the latest pending config
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, 500*time.Millisecond, 10*time.Second)

	if a.notify {
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			a.log.Warn("sd_notify failed", logx.Err(err))
		} else if ok {
			a.log.Debug("sd_notify ready sent")
		}
	}
	a.log.Info("app started", logx.String("addr", a.server.Addr()))
	return nil
}

// applyConfig re-applies the settings that take effect without a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.selector.SetMaxAttempts(newCfg.Content.RetryMax)
	a.router.SetKeywords(mapKeywords(newCfg))

	if bcfg, err := mapBroadcastConfig(newCfg); err != nil {
		a.log.Warn("invalid messaging config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(bcfg)
	}

	a.sched.Apply(scheduler.Config{Timezone: newCfg.Schedule.Timezone})
	if newCfg.Schedule.Enabled {
		spec, timeout, err := ScheduleSpec(newCfg)
		if err == nil {
			_, oldTimeout, _ := ScheduleSpec(oldCfg)
			if oldCfg.Schedule.Enabled && oldTimeout == timeout {
				err = a.sched.Reschedule(broadcastJob, spec)
			}
			if !oldCfg.Schedule.Enabled || oldTimeout != timeout || errors.Is(err, scheduler.ErrUnknownSchedule) {
				err = a.sched.Add(broadcastJob, spec, timeout, a.runScheduled)
			}
		}
		if err != nil {
			a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
		} else if !oldCfg.Schedule.Enabled {
			a.log.Info("broadcast schedule enabled via config", logx.String("spec", spec))
		}
	} else if a.sched.Remove(broadcastJob) {
		a.log.Info("broadcast schedule disabled via config")
	}

	restart := config.RestartRequired(sections)
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for some sections", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: eventbus.ConfigChange{
		Sections: sections,
		Restart:  restart,
	}})
}

// Done is closed when the supervisor context ends, including on a fatal
// goroutine error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal background error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop shuts components down in order, each bounded so one stuck
// component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.notify && a.sup != nil {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	}
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			took := time.Since(start)
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			} else if took > time.Second {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()))
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	if a.sup != nil {
		step("http", a.shutdownTimeout, a.server.Shutdown)
		step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	}
	if a.traceShutdown != nil {
		step("tracing", 2*time.Second, a.traceShutdown)
	}
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Wait)
	}

	a.log.Info("stopped")
	return a.logs.Close()
}
