// Package timers is the in-memory registry of armed per-item timers.
//
// Every timer has a stable name (reminder_<id>, deadline_<id>). Registering a
// name that already exists replaces it, so at most one timer per name is ever
// armed. A tick does no work itself: it hands an Event to the Dispatcher,
// which runs the matching engine on a worker.
//
// Timers are not persisted. After a restart the tracker re-registers one
// timer per active item.
package timers
