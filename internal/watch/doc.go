// Package watch keeps kernel change notifications subscribed on every
// directory of the watched tree and turns them into admission requests.
//
// A Source is one notification backend: the Linux inotify backend reports
// IN_CLOSE_WRITE directly, while the portable fsnotify backend synthesizes
// write-completion from a per-path quiet period. TreeWatcher walks the root
// at startup, subscribes directories created later together with whatever
// they already contain, and asks the reconciliation scanner for an immediate
// pass when the backend reports a queue overflow.
package watch
