package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
)

// Port names used by the JSON tasks.
const (
	PortValue = "value"
)

// expandPath substitutes {node} with the executing node key.
func expandPath(path string, node dag.Node) string {
	return strings.ReplaceAll(path, "{node}", node.Key())
}

// WriteJSON returns an executable that encodes the value wired into the input
// port as indented JSON and writes it to path.
func WriteJSON(store Storage, path, input string) dag.Executable {
	return dag.ExecutableFunc(func(ctx context.Context, io dag.PortIO) error {
		value, err := io.Load(input)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return errors.InvalidInput(input, fmt.Sprintf("value is not JSON encodable: %v", err))
		}
		target := expandPath(path, io.Node())
		if err := store.Write(ctx, target, append(data, '\n')); err != nil {
			return storageError("write", target, err)
		}
		return nil
	})
}

// ReadJSON returns an executable that reads path, decodes it as JSON and
// publishes the result on the output port. A missing object fails with
// NOT_FOUND.
func ReadJSON(store Storage, path, output string) dag.Executable {
	return dag.ExecutableFunc(func(ctx context.Context, io dag.PortIO) error {
		target := expandPath(path, io.Node())
		data, err := store.Read(ctx, target)
		if err != nil {
			return storageError("read", target, err)
		}
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return errors.InvalidInput(target, fmt.Sprintf("invalid JSON: %v", err))
		}
		return io.Publish(output, value)
	})
}

// JSONWriterTask builds a single-node pipeline that writes its "value" input
// to path.
func JSONWriterTask(name string, store Storage, path string) (*dag.Pipeline, error) {
	return dag.Task(name, WriteJSON(store, path, PortValue), dag.Inputs(PortValue))
}

// JSONReaderTask builds a single-node pipeline that publishes the decoded
// contents of path on its "value" output.
func JSONReaderTask(name string, store Storage, path string) (*dag.Pipeline, error) {
	return dag.Task(name, ReadJSON(store, path, PortValue), dag.Outputs(PortValue))
}

// storageError passes backend AppErrors through and wraps anything else.
func storageError(op, path string, err error) error {
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	return errors.Storage(op, path, err)
}
