// Package daemon coordinates the long-running emlwatch process.
//
// It wires configuration, the notification backend, the tree watcher, the
// reconciliation scanner and the dispatcher into a single lifecycle, with a
// flock-based lock in the state directory preventing a second instance from
// owning the same tree. Stop cancels the producers and waits for in-flight
// processor calls to finish before releasing the lock.
//
// Keep orchestration logic here: admission and worker semantics live in
// dispatch, notification handling in watch.
package daemon
