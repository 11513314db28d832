// Package logs reads and follows daemon log files for the CLI.
//
// Reads go through the path each time, so following the emlwatch.log pointer
// picks up the next run's file when a restarted daemon re-points it. Memory
// stays bounded when only the last lines of a large file are requested.
package logs
