package engine

// Partition buckets overdue tasks by the status they should transition to.
// The three lists are disjoint; KeptDone needs no write (status is already
// done) but is counted for reporting.
type Partition struct {
	KeptDone []Task
	ToTodo   []Task
	ToFailed []Task
}

func PartitionByTarget(tasks []Task) Partition {
	var p Partition
	for _, t := range tasks {
		switch TargetStatus(t) {
		case StatusDone:
			p.KeptDone = append(p.KeptDone, t)
		case StatusTodo:
			p.ToTodo = append(p.ToTodo, t)
		case StatusFailed:
			p.ToFailed = append(p.ToFailed, t)
		}
	}
	return p
}

// TaskIDs extracts ids in input order.
func TaskIDs(tasks []Task) []string {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
