// Package scheduler triggers the re-evaluation job on a fixed schedule.
//
// One job, one trigger: unlike a general task runner there is no queue and
// no worker pool here. The service enforces at-most-one-concurrent-run
// (a trigger that fires while the previous run is still in flight is
// skipped and logged) and puts every run under a wall-clock budget.
package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"taskpulse/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Enabled    bool
	Spec       string        // cron expression or interval, see ParseSchedule
	Timezone   string        // IANA TZ, e.g. "Europe/Berlin"; empty means local
	RunTimeout time.Duration // per-invocation budget (default 10m)
}

func (c Config) withDefaults() Config {
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
	return c
}

// Job is one scheduled invocation. Errors are already reflected in the
// job's own reporting; the scheduler only logs them.
type Job func(ctx context.Context) error

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	job Job

	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location

	running   atomic.Bool
	runWG     sync.WaitGroup
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg.withDefaults(),
		log: log,
		job: job,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		return nil // already running
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}

	spec, err := ParseSchedule(s.cfg.Spec)
	if err != nil {
		return err
	}
	loc, err := s.loadLocation()
	if err != nil {
		return err
	}
	s.loc = loc

	s.runCtx, s.runCancel = context.WithCancel(ctx)
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	switch spec.Kind {
	case SpecCron:
		if _, err := c.AddFunc(spec.Cron, s.trigger); err != nil {
			s.runCancel()
			s.runCtx, s.runCancel = nil, nil
			return err
		}
	case SpecInterval:
		c.Schedule(cron.Every(spec.Every), cron.FuncJob(s.trigger))
	}

	s.c = c
	c.Start()
	s.log.Info("scheduler started",
		logx.String("spec", s.cfg.Spec),
		logx.String("tz", loc.String()),
		logx.Duration("run_timeout", s.cfg.RunTimeout),
	)
	return nil
}

// Stop halts the trigger and waits (best-effort, bounded by ctx) for an
// in-flight run to finish.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with run in flight")
	}
}

// Apply swaps the schedule at runtime. A spec or timezone change restarts
// the cron; an in-flight run is left alone.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	started := s.c != nil
	s.mu.Unlock()

	if !started {
		return nil
	}
	if old.Spec == cfg.Spec && strings.TrimSpace(old.Timezone) == strings.TrimSpace(cfg.Timezone) && old.Enabled == cfg.Enabled {
		return nil
	}
	s.Stop(context.Background())
	return s.Start(ctx)
}

func (s *Service) trigger() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("previous run still in flight, skipping trigger")
		return
	}

	s.mu.Lock()
	base := s.runCtx
	timeout := s.cfg.RunTimeout
	s.mu.Unlock()
	if base == nil {
		s.running.Store(false)
		return
	}

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled run", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()

		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		if err := s.job(ctx); err != nil {
			// The job reports its own detail; err here only marks the trigger outcome.
			s.log.Warn("scheduled run failed", logx.Err(err))
		}
	}()
}

func (s *Service) loadLocation() (*time.Location, error) {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}
