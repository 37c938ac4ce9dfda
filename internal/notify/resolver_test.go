package notify

import (
	"testing"

	"taskpulse/internal/engine"
)

func member(userID, email string) engine.Member {
	return engine.Member{UserID: userID, Email: email, Active: true}
}

func TestResolveRecipientsDedupsOverlappingMemberships(t *testing.T) {
	t.Parallel()
	// Same user reachable through two membership records.
	task := engine.Task{
		ID: "t1",
		Org: engine.Organization{
			ID:      "o1",
			Members: []engine.Member{member("u1", "a@example.com"), member("u1", "a@example.com"), member("u2", "b@example.com")},
		},
	}

	got := ResolveRecipients([]engine.Task{task}, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(got))
	}
	seen := map[string]int{}
	for _, r := range got {
		seen[r.UserID]++
	}
	if seen["u1"] != 1 || seen["u2"] != 1 {
		t.Fatalf("dedup broken: %v", seen)
	}
}

func TestResolveRecipientsFiltersMembers(t *testing.T) {
	t.Parallel()
	task := engine.Task{
		ID: "t1",
		Org: engine.Organization{ID: "o1", Members: []engine.Member{
			{UserID: "active", Email: "a@example.com", Active: true},
			{UserID: "inactive", Email: "b@example.com", Active: false},
			{UserID: "deactivated", Email: "c@example.com", Active: true, Deactivated: true},
			{UserID: "admin", Email: "d@example.com", Active: true, PlatformAdmin: true},
		}},
	}

	got := ResolveRecipients([]engine.Task{task}, nil)
	if len(got) != 1 || got[0].UserID != "active" {
		t.Fatalf("expected only the active member, got %+v", got)
	}
}

func TestResolveRecipientsTargetStatus(t *testing.T) {
	t.Parallel()
	org := engine.Organization{ID: "o1", Members: []engine.Member{member("u1", "a@example.com")}}
	todoTask := engine.Task{ID: "todo-task", Org: org}
	failedTask := engine.Task{ID: "failed-task", Org: org}

	got := ResolveRecipients([]engine.Task{todoTask}, []engine.Task{failedTask})
	if len(got) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(got))
	}
	byTask := map[string]engine.Status{}
	for _, r := range got {
		byTask[r.Task.ID] = r.Target
	}
	if byTask["todo-task"] != engine.StatusTodo {
		t.Fatalf("todo task target = %s", byTask["todo-task"])
	}
	if byTask["failed-task"] != engine.StatusFailed {
		t.Fatalf("failed task target = %s", byTask["failed-task"])
	}
}

func TestResolveRecipientsSameUserAcrossTasks(t *testing.T) {
	t.Parallel()
	org := engine.Organization{ID: "o1", Members: []engine.Member{member("u1", "a@example.com")}}
	t1 := engine.Task{ID: "t1", Org: org}
	t2 := engine.Task{ID: "t2", Org: org}

	// One notification per (user, task) pair, not per user.
	got := ResolveRecipients([]engine.Task{t1, t2}, nil)
	if len(got) != 2 {
		t.Fatalf("expected one recipient per task, got %d", len(got))
	}
}
