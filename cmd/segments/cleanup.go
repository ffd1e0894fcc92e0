package main

import (
	"context"

	"github.com/spf13/cobra"
)

type removedOutput struct {
	Removed int `json:"removed" yaml:"removed"`
}

func (a *app) cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove empty segments and bad membership rows",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "empty",
			Short: "Delete the owner's segments that have no contacts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.service()
				if err != nil {
					return err
				}
				res, err := svc.CleanupEmptySegments(a.ctx(cmd))
				return emit(a, cmd, res, err)
			},
		},
		a.sweepCmd("orphans", "Delete membership rows whose contact or segment is gone",
			func(ctx context.Context) (int, error) {
				svc, err := a.service()
				if err != nil {
					return 0, err
				}
				return svc.CleanupOrphanedRelations(ctx)
			}),
		a.sweepCmd("duplicates", "Delete repeated membership rows",
			func(ctx context.Context) (int, error) {
				svc, err := a.service()
				if err != nil {
					return 0, err
				}
				return svc.RemoveDuplicateRelations(ctx)
			}),
	)
	return cmd
}

// sweepCmd wraps a global relation sweep that reports a removed count.
func (a *app) sweepCmd(use, short string, sweep func(context.Context) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := sweep(a.ctx(cmd))
			if err != nil {
				return emit[*removedOutput](a, cmd, nil, err)
			}
			return emit(a, cmd, &removedOutput{Removed: n}, nil)
		},
	}
}
