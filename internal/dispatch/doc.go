// Package dispatch runs timer firings on a bounded worker pool.
//
// The cron goroutine only enqueues. Workers look up the handler registered
// for the event's purpose and run it with a timeout and panic recovery.
// A firing is skipped while an earlier firing with the same job name is
// still queued or running.
package dispatch
