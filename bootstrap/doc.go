// Package bootstrap runs a pipekit binary through a uniform lifecycle:
// configure callbacks, component start in registration order, start and
// ready hooks, then either a signal wait (Run) or a finite task (RunTask),
// and finally a graceful stop in reverse order.
package bootstrap
