package engine

// TargetStatus decides which lifecycle status a task's automation evidence
// justifies:
//
//   - no automations of either kind configured: todo (nothing enforces the
//     completion, the task reverts to manual tracking)
//   - every configured kind passing: done (a kind with zero configured
//     checks is vacuously satisfied)
//   - anything else: failed
//
// A custom check with an empty run history, or whose newest run is not an
// explicit pass, counts as failing. Integration runs are reduced to the
// latest run per check id first.
func TargetStatus(t Task) Status {
	hasCustom := len(t.CustomChecks) > 0
	customPassing := hasCustom
	for _, c := range t.CustomChecks {
		if !c.NewestRunPassing() {
			customPassing = false
			break
		}
	}

	latest := LatestIntegrationRuns(t.IntegrationRuns)
	hasIntegration := len(latest) > 0
	integrationPassing := hasIntegration
	for _, r := range latest {
		if r.Status != CheckSuccess {
			integrationPassing = false
			break
		}
	}

	switch {
	case !hasCustom && !hasIntegration:
		return StatusTodo
	case (!hasCustom || customPassing) && (!hasIntegration || integrationPassing):
		return StatusDone
	default:
		return StatusFailed
	}
}

// LatestIntegrationRuns reduces a run list to the most recent run per check
// id. The input is not assumed sorted; ties on CreatedAt are broken by run
// id so the reduction is invariant under input reordering.
func LatestIntegrationRuns(runs []IntegrationRun) map[string]IntegrationRun {
	out := make(map[string]IntegrationRun, len(runs))
	for _, r := range runs {
		cur, ok := out[r.CheckID]
		if !ok || r.CreatedAt.After(cur.CreatedAt) ||
			(r.CreatedAt.Equal(cur.CreatedAt) && r.ID > cur.ID) {
			out[r.CheckID] = r
		}
	}
	return out
}
