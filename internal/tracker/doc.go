// Package tracker owns the lifecycle of habits and deadlines.
//
// Every operation that changes an item also keeps its timer in step: the
// store is written first and the timer registry second, so a failed write
// never leaves a timer behind. Timer names are derived from the item id
// (reminder_<id>, deadline_<id>), which makes registration idempotent and
// lets Restore rebuild every timer from stored rows after a restart.
//
// Firings arrive as timers.Event values. HandleReminder and HandleDeadline
// re-read the item before sending anything, so a completed or deleted item
// stays quiet even if its timer is still armed.
package tracker
