// Package session runs a dag.Pipeline.
//
// A Session ticks the pipeline frame until every node has completed. Each
// tick runs four commands in order: registered nodes become PENDING,
// PENDING nodes whose dependencies are all COMPLETED become QUEUED, QUEUED
// nodes are claimed and executed, and the frame is closed once nothing is
// left to do. A tick that finds no QUEUED node while work remains fails
// with DEADLOCK instead of looping forever.
//
// Node values flow through a write-once Store keyed by (node, port). Each
// executable receives a PortIO bound to its own node, so it loads inputs and
// publishes outputs by port name only.
//
// Basic usage:
//
//	s, err := session.New(p, session.WithInputs(map[string]any{"x": 1.0}))
//	if err != nil {
//	    return err
//	}
//	if err := s.Run(ctx); err != nil {
//	    return err
//	}
//	total, err := s.Output("total")
package session
