// Package daemonctl starts and stops a background emlwatch daemon from the
// CLI. Liveness is read from the single-owner lock, the target process from
// the pid file the daemon writes after it starts.
package daemonctl
