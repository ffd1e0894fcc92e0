// Package main is the segments command line tool. It opens the configured
// store, runs one segment operation as the --owner user and prints the
// result as YAML, or as a JSON result envelope with --json.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if cerr := a.close(); err == nil && cerr != nil {
		err = sysErr(fmt.Errorf("closing store: %w", cerr))
	}
	if err != nil {
		a.emitFailure(stdout, err)
		fmt.Fprintln(stderr, "Error:", err)
	}
	return exitCode(err)
}
