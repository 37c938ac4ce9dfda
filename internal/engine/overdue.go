package engine

import "time"

// Overdue filters the candidate set down to tasks whose next due date is at
// or before now.
//
// Candidates are supposed to arrive with review date and frequency set (the
// store filters on both); a record missing either is treated as not overdue
// rather than crashing the run.
func Overdue(tasks []Task, now time.Time) []Task {
	var out []Task
	for _, t := range tasks {
		if t.ReviewDate == nil || !t.Frequency.Valid() {
			continue
		}
		if due := NextDueDate(*t.ReviewDate, t.Frequency); !due.After(now) {
			out = append(out, t)
		}
	}
	return out
}
