// Package conversation is the chat front-end: the main menu and the
// multi-step dialogs that turn user replies into tracker calls.
//
// Each owner has at most one dialog in progress. Its state is a typed value
// (awaitDeadlineTime carries the title and date typed so far) that expires
// after a TTL. Updates are sharded by owner onto a fixed worker pool, so one
// owner's messages are handled in order while different owners proceed in
// parallel.
package conversation
