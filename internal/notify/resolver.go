package notify

import "taskpulse/internal/engine"

// Recipient is one resolved (user, task) notification target. Target is the
// status used for the notification copy, not the persisted one (that write
// already happened upstream).
type Recipient struct {
	UserID string
	Email  string
	Name   string
	Task   engine.Task
	Target engine.Status
}

type recipientKey struct {
	userID string
	taskID string
}

// ResolveRecipients builds the deduplicated audience for the tasks whose
// status changed. Per task it takes the owning organization's active,
// non-deactivated, non-platform-admin members; a user reachable through
// several membership records is kept once per task. Membership in toFailed
// decides the copy; everything else falls back to todo.
func ResolveRecipients(toTodo, toFailed []engine.Task) []Recipient {
	failed := make(map[string]bool, len(toFailed))
	for _, t := range toFailed {
		failed[t.ID] = true
	}

	seen := map[recipientKey]bool{}
	var out []Recipient

	resolve := func(tasks []engine.Task) {
		for _, t := range tasks {
			target := engine.StatusTodo
			if failed[t.ID] {
				target = engine.StatusFailed
			}
			for _, m := range t.Org.Members {
				if !m.Active || m.Deactivated || m.PlatformAdmin {
					continue
				}
				k := recipientKey{userID: m.UserID, taskID: t.ID}
				if seen[k] {
					continue
				}
				seen[k] = true
				out = append(out, Recipient{
					UserID: m.UserID,
					Email:  m.Email,
					Name:   m.Name,
					Task:   t,
					Target: target,
				})
			}
		}
	}
	resolve(toTodo)
	resolve(toFailed)
	return out
}
