// Package main hosts the emlwatch CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the watcher daemon in the foreground,
// performs one-off reconciliation passes, processes a single record on
// demand, reports daemon and tree status, and scaffolds configuration. It
// centralizes configuration resolution and logger setup so subcommands can
// focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
