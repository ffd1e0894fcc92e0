package main

import "github.com/spf13/cobra"

func (a *app) analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report on segment usage",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "usage",
			Short: "Contact counts, stale and empty segments, recommendations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service()
				if err != nil {
					return err
				}
				rep, err := svc.AnalyzeSegmentUsage(a.ctx(cmd))
				return emit(a, cmd, rep, err)
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Per-segment contact counts and totals",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service()
				if err != nil {
					return err
				}
				st, err := svc.GetSegmentStats(a.ctx(cmd))
				return emit(a, cmd, st, err)
			},
		},
		&cobra.Command{
			Use:   "colors",
			Short: "How segments are spread over the color palette",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service()
				if err != nil {
					return err
				}
				rep, err := svc.GetColorDistribution(a.ctx(cmd))
				return emit(a, cmd, rep, err)
			},
		},
	)
	return cmd
}
