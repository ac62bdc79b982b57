// Package logger provides structured logging for pipekit using zerolog.
//
// Loggers are plain values passed to the components that need them. A
// session derives a logger tagged with its id, and every node execution
// derives one tagged with the node key, so a run can be followed in the
// output by filtering on session_id and node.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg.Logging, "pipekit").WithComponent("session")
//	log.Info("session started", logger.Fields(logger.FieldPipeline, p.Name()))
package logger
