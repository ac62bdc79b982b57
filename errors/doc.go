// Package errors provides the structured error type shared by pipekit
// packages. Every failure carries a machine-readable code, a message with
// enough context to diagnose misconfiguration (conflicting names, valid
// alternatives), optional details and an optional cause.
package errors
