package engine

import (
	"context"
	"strings"
	"time"
)

// Status is a task lifecycle status. The engine only ever writes the three
// values below; other statuses exist upstream but never reach this code.
type Status string

const (
	StatusTodo   Status = "todo"
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Frequency is the recurrence interval of a task. The empty value means the
// task is not recurring.
type Frequency string

const (
	FreqDaily     Frequency = "daily"
	FreqWeekly    Frequency = "weekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqYearly    Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqQuarterly, FreqYearly:
		return true
	}
	return false
}

// ParseFrequency maps a stored string onto the closed enum.
// Unknown or empty values come back as "" (not recurring).
func ParseFrequency(s string) Frequency {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if f.Valid() {
		return f
	}
	return ""
}

// EvalStatus is the outcome of a single custom automation run.
// Anything that is not an explicit pass counts as not passing.
type EvalStatus uint8

const (
	EvalUnknown EvalStatus = iota
	EvalPass
	EvalFail
)

func ParseEvalStatus(s string) EvalStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed":
		return EvalPass
	case "fail", "failed":
		return EvalFail
	default:
		return EvalUnknown
	}
}

// CheckStatus is the outcome of a platform integration check run.
// Only CheckSuccess counts as passing; unrecognized values map to
// CheckUnknown so the aggregator stays total.
type CheckStatus uint8

const (
	CheckUnknown CheckStatus = iota
	CheckSuccess
	CheckFailed
	CheckPending
	CheckRunning
)

func ParseCheckStatus(s string) CheckStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "succeeded":
		return CheckSuccess
	case "failed", "failure":
		return CheckFailed
	case "pending":
		return CheckPending
	case "running":
		return CheckRunning
	default:
		return CheckUnknown
	}
}

// CustomRun is one evaluation of a custom automation check.
type CustomRun struct {
	ID        string
	Status    EvalStatus
	CreatedAt time.Time
}

// CustomCheck is a user-configured evidence automation bound to a task.
// Runs are ordered newest-first; only Runs[0] determines current state.
type CustomCheck struct {
	ID   string
	Runs []CustomRun
}

// NewestRunPassing reports whether the check's most recent run passed.
// A check with no runs at all counts as not passing.
func (c CustomCheck) NewestRunPassing() bool {
	return len(c.Runs) > 0 && c.Runs[0].Status == EvalPass
}

// IntegrationRun is one result of a platform-level automated check.
// Multiple runs share a CheckID over time; only the newest per CheckID
// is authoritative.
type IntegrationRun struct {
	ID        string
	CheckID   string
	Status    CheckStatus
	CreatedAt time.Time
}

// Member is an organization membership record. The same user may appear in
// several records (overlapping roles); recipient resolution dedups on user id.
type Member struct {
	UserID        string
	Email         string
	Name          string
	Active        bool
	Deactivated   bool
	PlatformAdmin bool
}

type Organization struct {
	ID      string
	Name    string
	Members []Member
}

// Task is a recurring compliance obligation together with the automation
// evidence needed to decide its target status.
type Task struct {
	ID         string
	Title      string
	Status     Status
	ReviewDate *time.Time
	Frequency  Frequency
	Org        Organization

	CustomChecks    []CustomCheck
	IntegrationRuns []IntegrationRun
}

// RunResult is the per-invocation summary. It is a value object: built once
// per run, logged and audited, never mutated afterwards.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Inspected     int
	Overdue       int
	KeptDone      int
	MovedToTodo   int
	MovedToFailed int

	EmailsSent   int
	EmailsFailed int
	Skipped      int

	Err string
}

func (r RunResult) OK() bool { return r.Err == "" }

// Store is the persistence surface the engine consumes.
type Store interface {
	// ListRecurringDoneTasks returns every task with status done, a non-null
	// review date and a non-null frequency, with automation evidence and the
	// owning organization's member list attached.
	ListRecurringDoneTasks(ctx context.Context) ([]Task, error)

	// BulkSetStatus sets the status of every listed task.
	BulkSetStatus(ctx context.Context, taskIDs []string, status Status) error
}

// FanoutResult summarizes one notification fan-out.
type FanoutResult struct {
	Sent    int
	Failed  int
	Skipped int
}

// Notifier fans notifications out to the members of the affected tasks'
// organizations. Delivery failures are isolated inside the notifier and
// reflected in the result, never returned as an error.
type Notifier interface {
	Fanout(ctx context.Context, toTodo, toFailed []Task) FanoutResult
}
