// Package app wires configuration, storage, transports, the engine and the
// scheduler into one process and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskpulse/internal/config"
	"taskpulse/internal/engine"
	"taskpulse/internal/eventbus"
	"taskpulse/internal/notify"
	"taskpulse/internal/scheduler"
	"taskpulse/internal/storage"
	"taskpulse/internal/transport"
	"taskpulse/internal/transport/email"
	"taskpulse/internal/transport/inapp"
	"taskpulse/internal/transport/prefs"
	"taskpulse/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store      *storage.Store
	bus        eventbus.Bus
	dispatcher *notify.Dispatcher
	engine     *engine.Service
	sched      *scheduler.Service

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})
	mgr.SetLogger(log.With(logx.String("svc", "config")))

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeoutDuration(),
	}, log.With(logx.String("svc", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	mailer, err := email.New(email.Config{
		BaseURL:    cfg.Email.BaseURL,
		APIKey:     cfg.Email.APIKey,
		From:       cfg.Email.From,
		RatePerSec: cfg.Email.RatePerSec,
		Timeout:    cfg.Email.TimeoutDuration(),
	}, log.With(logx.String("svc", "email")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	// In-app and preference services are optional: a missing base URL means
	// the channel (or the unsubscribe check) is simply not wired.
	var inappClient transport.InAppNotifier
	if cfg.InApp.BaseURL != "" {
		c, err := inapp.New(inapp.Config{
			BaseURL:  cfg.InApp.BaseURL,
			APIKey:   cfg.InApp.APIKey,
			Workflow: cfg.InApp.Workflow,
			Timeout:  cfg.InApp.TimeoutDuration(),
		}, log.With(logx.String("svc", "inapp")))
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, err
		}
		inappClient = c
	}
	var prefsClient transport.UnsubscribeChecker
	if cfg.Prefs.BaseURL != "" {
		c, err := prefs.New(prefs.Config{
			BaseURL: cfg.Prefs.BaseURL,
			APIKey:  cfg.Prefs.APIKey,
			Timeout: cfg.Prefs.TimeoutDuration(),
		}, log.With(logx.String("svc", "prefs")))
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, err
		}
		prefsClient = c
	}

	bus := eventbus.New()
	dispatcher := notify.New(notify.Config{
		Workers:  cfg.Notify.Workers,
		BaseURL:  cfg.Notify.BaseURL,
		Category: cfg.Notify.Category,
	}, mailer, inappClient, prefsClient, bus, log.With(logx.String("svc", "notify")))

	eng := engine.NewService(store, dispatcher, bus, log.With(logx.String("svc", "engine")))

	sched := scheduler.New(scheduler.Config{
		Enabled:    cfg.Scheduler.Enabled,
		Spec:       cfg.Scheduler.Spec,
		Timezone:   cfg.Scheduler.Timezone,
		RunTimeout: cfg.Scheduler.RunTimeoutDuration(),
	}, func(ctx context.Context) error {
		_, err := eng.Run(ctx)
		return err
	}, log.With(logx.String("svc", "scheduler")))

	return &App{
		cfgMgr:     mgr,
		logSvc:     logSvc,
		log:        log,
		store:      store,
		bus:        bus,
		dispatcher: dispatcher,
		engine:     eng,
		sched:      sched,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	reloads := a.cfgMgr.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-reloads:
				if !ok {
					return
				}
				a.applyConfig(runCtx, cfg)
			}
		}
	}()

	a.startAuditWriter(runCtx)
	a.startSystemd(runCtx)

	a.log.Info("taskpulse started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.sched.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}

// RunOnce executes a single invocation outside the schedule (the -once
// flag) and records it in the audit trail like any scheduled run.
func (a *App) RunOnce(ctx context.Context) error {
	res, err := a.engine.Run(ctx)
	if aerr := a.store.AppendRun(ctx, res); aerr != nil {
		a.log.Warn("append run audit failed", logx.Err(aerr))
	}
	return err
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig(cfg.Logging.File),
	})
	a.dispatcher.Apply(notify.Config{
		Workers:  cfg.Notify.Workers,
		BaseURL:  cfg.Notify.BaseURL,
		Category: cfg.Notify.Category,
	})

	if err := a.sched.Apply(ctx, scheduler.Config{
		Enabled:    cfg.Scheduler.Enabled,
		Spec:       cfg.Scheduler.Spec,
		Timezone:   cfg.Scheduler.Timezone,
		RunTimeout: cfg.Scheduler.RunTimeoutDuration(),
	}); err != nil {
		a.log.Warn("scheduler reconfigure failed", logx.Err(err))
	}
}

// startAuditWriter mirrors finished runs into the sqlite audit trail.
func (a *App) startAuditWriter(ctx context.Context) {
	events, unsub := a.bus.Subscribe(16)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Type != eventbus.TypeRunFinished {
					continue
				}
				res, ok := ev.Data.(engine.RunResult)
				if !ok {
					continue
				}
				wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := a.store.AppendRun(wctx, res); err != nil {
					a.log.Warn("append run audit failed", logx.Err(err), logx.String("run", res.RunID))
				}
				cancel()
			}
		}
	}()
}

// startSystemd signals readiness and, when the watchdog is armed, keeps it
// fed. Both calls are no-ops outside a systemd unit.
func (a *App) startSystemd(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
