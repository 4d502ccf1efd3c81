// Package storage persists tracked items (habits and deadlines).
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//   - "memory": process-local map, for tests and throwaway runs
//
// The store never touches timers; keeping timers in step with rows is the
// caller's job.
package storage
