// Package dag models pipelines as directed acyclic graphs of nodes with
// named input and output ports, and composes small pipelines into larger
// ones.
//
// A Pipeline is immutable. Task builds a single-node pipeline around an
// Executable; Combine merges member pipelines, wires outputs of one member
// to inputs of another and decides which inner ports stay visible on the
// result. Every transform returns a new Pipeline, so one definition can be
// reused (after Relabel) any number of times.
//
// Ports are addressed by name. A dotted name such as "w.train" is an entry
// of the collection "w"; collections can be wired, renamed, dropped and
// exposed as a whole.
//
// Pipelines can also be declared in YAML (see Definition) and resolved
// against a Catalog of component factories.
//
// Execution lives in the session package. Nodes receive an explicit PortIO
// handle for the duration of one invocation and exchange values only
// through it.
package dag
