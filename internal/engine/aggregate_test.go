package engine

import (
	"testing"
	"time"
)

func customCheck(id string, newest EvalStatus, older ...EvalStatus) CustomCheck {
	c := CustomCheck{ID: id}
	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	c.Runs = append(c.Runs, CustomRun{ID: id + "-r0", Status: newest, CreatedAt: at})
	for i, st := range older {
		c.Runs = append(c.Runs, CustomRun{ID: id + "-r" + string(rune('1'+i)), Status: st, CreatedAt: at.Add(-time.Duration(i+1) * time.Hour)})
	}
	return c
}

func integrationRun(id, checkID string, status CheckStatus, at time.Time) IntegrationRun {
	return IntegrationRun{ID: id, CheckID: checkID, Status: status, CreatedAt: at}
}

func TestTargetStatusNoAutomations(t *testing.T) {
	t.Parallel()
	if got := TargetStatus(Task{}); got != StatusTodo {
		t.Fatalf("TargetStatus with no automations = %s, want todo", got)
	}
}

func TestTargetStatusCustomOnly(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		checks []CustomCheck
		want   Status
	}{
		{name: "all passing", checks: []CustomCheck{customCheck("a", EvalPass), customCheck("b", EvalPass, EvalFail)}, want: StatusDone},
		{name: "one failing", checks: []CustomCheck{customCheck("a", EvalPass), customCheck("b", EvalFail)}, want: StatusFailed},
		{name: "newest unknown", checks: []CustomCheck{customCheck("a", EvalUnknown, EvalPass)}, want: StatusFailed},
		{name: "empty run history", checks: []CustomCheck{{ID: "a"}}, want: StatusFailed},
		{name: "older failure ignored", checks: []CustomCheck{customCheck("a", EvalPass, EvalFail, EvalFail)}, want: StatusDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TargetStatus(Task{CustomChecks: tt.checks})
			if got != tt.want {
				t.Fatalf("TargetStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTargetStatusIntegrationOnly(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		runs []IntegrationRun
		want Status
	}{
		{
			name: "latest per check all success",
			runs: []IntegrationRun{
				integrationRun("r1", "c1", CheckFailed, base),
				integrationRun("r2", "c1", CheckSuccess, base.Add(time.Hour)),
				integrationRun("r3", "c2", CheckSuccess, base),
			},
			want: StatusDone,
		},
		{
			name: "latest failed despite older success",
			runs: []IntegrationRun{
				integrationRun("r1", "c1", CheckSuccess, base),
				integrationRun("r2", "c1", CheckFailed, base.Add(time.Hour)),
			},
			want: StatusFailed,
		},
		{
			name: "pending is not passing",
			runs: []IntegrationRun{integrationRun("r1", "c1", CheckPending, base)},
			want: StatusFailed,
		},
		{
			name: "unrecognized is not passing",
			runs: []IntegrationRun{integrationRun("r1", "c1", CheckUnknown, base)},
			want: StatusFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TargetStatus(Task{IntegrationRuns: tt.runs}); got != tt.want {
				t.Fatalf("TargetStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTargetStatusOrderIndependent(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	runs := []IntegrationRun{
		integrationRun("r1", "c1", CheckFailed, base),
		integrationRun("r2", "c1", CheckSuccess, base.Add(time.Hour)),
		integrationRun("r3", "c2", CheckSuccess, base.Add(2*time.Hour)),
		integrationRun("r4", "c2", CheckFailed, base),
	}
	want := TargetStatus(Task{IntegrationRuns: runs})
	if want != StatusDone {
		t.Fatalf("baseline = %s, want done", want)
	}

	// Every rotation of the same runs must yield the same result.
	for shift := 1; shift < len(runs); shift++ {
		perm := append(append([]IntegrationRun(nil), runs[shift:]...), runs[:shift]...)
		if got := TargetStatus(Task{IntegrationRuns: perm}); got != want {
			t.Fatalf("rotation %d: TargetStatus = %s, want %s", shift, got, want)
		}
	}
}

func TestTargetStatusBothKinds(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	pass := []IntegrationRun{integrationRun("r1", "c1", CheckSuccess, base)}
	fail := []IntegrationRun{integrationRun("r1", "c1", CheckFailed, base)}

	tests := []struct {
		name   string
		checks []CustomCheck
		runs   []IntegrationRun
		want   Status
	}{
		{name: "both passing", checks: []CustomCheck{customCheck("a", EvalPass)}, runs: pass, want: StatusDone},
		{name: "custom fails", checks: []CustomCheck{customCheck("a", EvalFail)}, runs: pass, want: StatusFailed},
		{name: "integration fails", checks: []CustomCheck{customCheck("a", EvalPass)}, runs: fail, want: StatusFailed},
		{name: "both failing", checks: []CustomCheck{customCheck("a", EvalFail)}, runs: fail, want: StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TargetStatus(Task{CustomChecks: tt.checks, IntegrationRuns: tt.runs})
			if got != tt.want {
				t.Fatalf("TargetStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLatestIntegrationRunsTieBreak(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	a := integrationRun("ra", "c1", CheckFailed, at)
	b := integrationRun("rb", "c1", CheckSuccess, at)

	got1 := LatestIntegrationRuns([]IntegrationRun{a, b})
	got2 := LatestIntegrationRuns([]IntegrationRun{b, a})
	if got1["c1"].ID != got2["c1"].ID {
		t.Fatalf("tie-break depends on input order: %s vs %s", got1["c1"].ID, got2["c1"].ID)
	}
}
