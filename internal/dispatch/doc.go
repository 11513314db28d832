// Package dispatch owns the admission and execution side of emlwatch.
//
// A Dispatcher combines the completion oracle, the in-flight set, the FIFO
// dispatch queue and a fixed pool of workers. Producers (the tree watcher and
// the reconciliation Scanner) call Admit; workers pop candidates, invoke the
// processor and release the in-flight entry once the call returns. Admission
// checks the completion marker and in-flight membership under one lock so a
// candidate is never queued twice or after its artifact exists.
//
// Shutdown is driven by context cancellation: producers return, workers stop
// popping, processor calls already running finish on a non-cancelable context,
// and whatever is still queued is released and logged as abandoned.
package dispatch
