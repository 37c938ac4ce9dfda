package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskpulse/internal/eventbus"
	"taskpulse/pkg/logx"
)

// Service runs one re-evaluation pass over every completed recurring task:
// load candidates, select overdue, partition by target status, persist the
// two changed buckets, fan out notifications, report.
//
// It holds no state between runs; the scheduler guarantees at most one
// concurrent invocation.
type Service struct {
	store    Store
	notifier Notifier
	bus      eventbus.Bus
	log      logx.Logger

	now func() time.Time
}

func NewService(store Store, notifier Notifier, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// Run executes one invocation and returns its summary. The returned error
// is non-nil only for fatal outcomes (candidate load or persistence); the
// same detail is in RunResult.Err. Notification failures never make a run
// fatal.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	res := RunResult{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.log.With(logx.String("run", res.RunID))
	s.publish(eventbus.TypeRunStarted, res)

	tasks, err := s.store.ListRecurringDoneTasks(ctx)
	if err != nil {
		return s.fail(log, res, fmt.Errorf("load candidates: %w", err))
	}
	res.Inspected = len(tasks)

	overdue := Overdue(tasks, s.now())
	res.Overdue = len(overdue)

	part := PartitionByTarget(overdue)
	res.KeptDone = len(part.KeptDone)
	res.MovedToTodo = len(part.ToTodo)
	res.MovedToFailed = len(part.ToFailed)

	// Two independent bulk writes, deliberately not one transaction. A crash
	// between them leaves a partially applied run; the next invocation
	// recomputes target statuses from scratch and the writes are idempotent,
	// so re-running self-heals.
	if err := s.persist(ctx, part.ToTodo, StatusTodo); err != nil {
		return s.fail(log, res, err)
	}
	if err := s.persist(ctx, part.ToFailed, StatusFailed); err != nil {
		return s.fail(log, res, err)
	}

	if s.notifier != nil && len(part.ToTodo)+len(part.ToFailed) > 0 {
		fr := s.notifier.Fanout(ctx, part.ToTodo, part.ToFailed)
		res.EmailsSent = fr.Sent
		res.EmailsFailed = fr.Failed
		res.Skipped = fr.Skipped
	}

	res.FinishedAt = s.now()
	log.Info("run finished",
		logx.Int("inspected", res.Inspected),
		logx.Int("overdue", res.Overdue),
		logx.Int("kept_done", res.KeptDone),
		logx.Int("to_todo", res.MovedToTodo),
		logx.Int("to_failed", res.MovedToFailed),
		logx.Int("emails_sent", res.EmailsSent),
		logx.Int("emails_failed", res.EmailsFailed),
		logx.Int("skipped", res.Skipped),
		logx.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	s.publish(eventbus.TypeRunFinished, res)
	return res, nil
}

func (s *Service) persist(ctx context.Context, tasks []Task, status Status) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := s.store.BulkSetStatus(ctx, TaskIDs(tasks), status); err != nil {
		return fmt.Errorf("bulk set status %s: %w", status, err)
	}
	return nil
}

func (s *Service) fail(log logx.Logger, res RunResult, err error) (RunResult, error) {
	res.Err = err.Error()
	res.FinishedAt = s.now()
	log.Error("run failed", logx.Err(err),
		logx.Int("inspected", res.Inspected),
		logx.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	s.publish(eventbus.TypeRunFinished, res)
	return res, err
}

func (s *Service) publish(typ string, res RunResult) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: res})
}
