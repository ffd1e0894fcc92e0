package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/segments/pkg/segments"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the segments version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "segments", segments.Version)
		},
	}
}
