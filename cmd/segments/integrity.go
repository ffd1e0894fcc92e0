package main

import "github.com/spf13/cobra"

func (a *app) integrityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Audit and repair segment data",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate",
			Short: "List integrity issues and a health score",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service()
				if err != nil {
					return err
				}
				rep, err := svc.ValidateSegmentIntegrity(a.ctx(cmd))
				return emit(a, cmd, rep, err)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Per-segment relation counts and consistency flags",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service()
				if err != nil {
					return err
				}
				rep, err := svc.CheckSegmentConsistency(a.ctx(cmd))
				return emit(a, cmd, rep, err)
			},
		},
		&cobra.Command{
			Use:   "repair",
			Short: "Delete orphaned and duplicate membership rows",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service()
				if err != nil {
					return err
				}
				rep, err := svc.AutoRepairSegmentIssues(a.ctx(cmd))
				return emit(a, cmd, rep, err)
			},
		},
	)
	return cmd
}
