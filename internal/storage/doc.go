// Package storage persists tasks, organizations, automation evidence and
// the per-invocation run audit trail in SQLite.
package storage
