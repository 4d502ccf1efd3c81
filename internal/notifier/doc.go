// Package notifier delivers chat messages to item owners.
//
// Sends go through a shared token bucket (golang.org/x/time/rate) so a burst
// of timer firings after a restart cannot trip Telegram flood limits. Each
// attempt is bounded by a send timeout and failed attempts are retried with
// jittered exponential backoff.
//
// Notify is synchronous: the caller learns whether the message went out. The
// reminder engines log that outcome and carry on; they never change item
// state because of a failed send.
//
// Outcomes are published on the event bus (notify.sent, notify.failed) and a
// small in-memory history is kept for diagnostics.
package notifier
