// Package endpoint provides the operational HTTP handlers: health,
// readiness and version.
package endpoint
