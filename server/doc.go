// Package server exposes registered pipelines over HTTP using Gin, with
// HTTP/2 cleartext (h2c) support on the same port.
//
// # Routes
//
//   - GET  /health, /ready, /version
//   - GET  /api/v1/pipelines
//   - GET  /api/v1/pipelines/:name
//   - POST /api/v1/pipelines/:name/sessions
//   - GET  /api/v1/sessions
//   - GET  /api/v1/sessions/:id
//
// Sessions started through the API run in-process and are kept in a
// bounded tracker for inspection. When a storage backend is configured,
// each finished session is also written there as JSON.
//
// # Middleware
//
// Built-in middleware (server/middleware): Recovery, RequestID, CORS,
// BodySizeLimit, RequestLogger, and a per-client RateLimit on session
// starts.
package server
