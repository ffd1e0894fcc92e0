package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/segments/pkg/segments"
)

// emit prints the outcome of an operation and returns err classified for
// the exit code. With --json the result envelope is always printed; in
// YAML mode data is printed on success and for batches that failed as a
// whole, so per-item errors stay visible.
func emit[T any](a *app, cmd *cobra.Command, data T, err error) error {
	out := cmd.OutOrStdout()
	if a.jsonOut {
		if eerr := a.writeEnvelope(out, segments.ResultOf(data, err)); eerr != nil {
			return sysErr(eerr)
		}
	} else if err == nil || isBatch(data) {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if eerr := enc.Encode(data); eerr != nil {
			return sysErr(eerr)
		}
		if eerr := enc.Close(); eerr != nil {
			return sysErr(eerr)
		}
	}
	if err != nil && segments.KindOf(err) == segments.KindStore {
		return sysErr(err)
	}
	return err
}

// writeEnvelope prints one JSON result envelope and records that the
// command produced its output.
func (a *app) writeEnvelope(w io.Writer, v any) error {
	a.emitted = true
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emitFailure prints the envelope for an error returned before the command
// reached emit, so --json output is never empty.
func (a *app) emitFailure(w io.Writer, err error) {
	if !a.jsonOut || a.emitted || err == nil {
		return
	}
	_ = a.writeEnvelope(w, segments.ResultOf[any](nil, err))
}

func isBatch(v any) bool {
	switch b := v.(type) {
	case *segments.BatchResult:
		return b != nil
	case *segments.MergeResult:
		return b != nil
	}
	return false
}
