package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskpulse/internal/engine"
	"taskpulse/internal/eventbus"
	"taskpulse/internal/transport"
	"taskpulse/pkg/logx"
)

// Config controls the fan-out.
type Config struct {
	Workers  int    // concurrent email sends (default 4)
	BaseURL  string // app base URL for deep links
	Category string // unsubscribe category (default "task-reminders")
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Category == "" {
		c.Category = "task-reminders"
	}
	return c
}

// Dispatcher fans one email and one in-app event out per recipient.
//
// Per-recipient failure isolation: every recipient's email send is
// attempted regardless of other recipients' outcomes (settle-all, never
// fail-fast), errors are logged with recipient and task ids and counted,
// never propagated. The in-app channel is one bulk call after the email
// phase; its failure is likewise non-fatal.
type Dispatcher struct {
	mu     sync.Mutex
	cfg    Config
	mailer transport.Mailer
	inapp  transport.InAppNotifier
	unsubs transport.UnsubscribeChecker
	bus    eventbus.Bus
	log    logx.Logger
}

var _ engine.Notifier = (*Dispatcher)(nil)

func New(cfg Config, mailer transport.Mailer, inapp transport.InAppNotifier, unsubs transport.UnsubscribeChecker, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:    cfg.withDefaults(),
		mailer: mailer,
		inapp:  inapp,
		unsubs: unsubs,
		bus:    bus,
		log:    log,
	}
}

// Apply swaps the runtime-tunable knobs. Safe to call concurrently with
// an in-flight fan-out; the new config applies from the next run.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg.withDefaults()
	d.mu.Unlock()
}

type outcome struct {
	recipient Recipient
	skipped   bool
	err       error
}

func (d *Dispatcher) Fanout(ctx context.Context, toTodo, toFailed []engine.Task) engine.FanoutResult {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	recipients := ResolveRecipients(toTodo, toFailed)
	if len(recipients) == 0 {
		return engine.FanoutResult{}
	}

	start := time.Now()
	d.log.Info("fanout started",
		logx.Int("recipients", len(recipients)),
		logx.Int("to_todo", len(toTodo)),
		logx.Int("to_failed", len(toFailed)),
	)

	outcomes := d.sendEmails(ctx, cfg, recipients)

	var res engine.FanoutResult
	events := make([]transport.InAppEvent, 0, len(outcomes))
	txID := uuid.NewString()
	for _, o := range outcomes {
		switch {
		case o.skipped:
			res.Skipped++
			continue
		case o.err != nil:
			res.Failed++
		default:
			res.Sent++
		}
		// In-app goes to every non-unsubscribed recipient, independent of
		// the email outcome: the channels don't depend on each other.
		events = append(events, transport.InAppEvent{
			RecipientKey:  o.recipient.UserID,
			TransactionID: txID + ":" + o.recipient.Task.ID + ":" + o.recipient.UserID,
			Payload: transport.InAppPayload{
				TaskID:    o.recipient.Task.ID,
				TaskTitle: o.recipient.Task.Title,
				Status:    string(o.recipient.Target),
				Link:      deepLink(cfg.BaseURL, o.recipient.Task.ID),
			},
		})
	}

	if d.inapp != nil && len(events) > 0 {
		if err := d.inapp.TriggerBulk(ctx, events); err != nil {
			// Bulk channel: reported at run level, no per-recipient granularity.
			d.log.Warn("in-app bulk trigger failed", logx.Err(err), logx.Int("events", len(events)))
		}
	}

	fields := []logx.Field{
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Int("skipped", res.Skipped),
		logx.Duration("took", time.Since(start)),
	}
	if res.Failed > 0 {
		d.log.Warn("fanout finished with failures", fields...)
	} else {
		d.log.Info("fanout finished", fields...)
	}
	return res
}

// sendEmails runs the email phase over a bounded worker pool and collects
// one outcome per recipient.
func (d *Dispatcher) sendEmails(ctx context.Context, cfg Config, recipients []Recipient) []outcome {
	jobs := make(chan int)
	outcomes := make([]outcome, len(recipients))

	var wg sync.WaitGroup
	workers := cfg.Workers
	if workers > len(recipients) {
		workers = len(recipients)
	}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				// Recover per job so a panicking send fails one recipient and
				// the worker keeps draining; a dead worker would leave the
				// producer blocked on the jobs channel.
				func() {
					defer func() {
						if r := recover(); r != nil {
							d.log.Error("panic in fanout worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							outcomes[i] = outcome{recipient: recipients[i], err: fmt.Errorf("send panicked: %v", r)}
						}
					}()
					outcomes[i] = d.sendOne(ctx, cfg, recipients[i])
				}()
			}
		}()
	}

	for i := range recipients {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

func (d *Dispatcher) sendOne(ctx context.Context, cfg Config, r Recipient) outcome {
	o := outcome{recipient: r}

	if d.unsubs != nil {
		unsubscribed, err := d.unsubs.IsUnsubscribed(ctx, r.Email, cfg.Category, r.Task.Org.ID)
		if err != nil {
			// Fail-open: a broken preference lookup must not silently drop
			// legitimate notifications.
			d.log.Warn("unsubscribe lookup failed, sending anyway",
				logx.Err(err), logx.String("user", r.UserID), logx.String("task", r.Task.ID))
		} else if unsubscribed {
			d.publish(eventbus.TypeNotifySkipped, r, nil)
			o.skipped = true
			return o
		}
	}

	link := deepLink(cfg.BaseURL, r.Task.ID)
	err := d.mailer.Send(ctx, transport.Email{
		To:      r.Email,
		Subject: emailSubject(r.Task, r.Target),
		HTML:    emailBody(r.Name, r.Task, r.Target, link),
	})
	if err != nil {
		d.log.Warn("email send failed",
			logx.Err(err),
			logx.String("user", r.UserID),
			logx.String("task", r.Task.ID),
			logx.String("status", string(r.Target)),
		)
		d.publish(eventbus.TypeNotifyFailed, r, err)
		o.err = err
		return o
	}
	d.publish(eventbus.TypeNotifySent, r, nil)
	return o
}

// DeliveryEvent is the bus payload for per-recipient outcomes.
type DeliveryEvent struct {
	UserID string
	TaskID string
	Status engine.Status
	Error  string
}

func (d *Dispatcher) publish(typ string, r Recipient, err error) {
	if d.bus == nil {
		return
	}
	e := DeliveryEvent{UserID: r.UserID, TaskID: r.Task.ID, Status: r.Target}
	if err != nil {
		e.Error = err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: e})
}
