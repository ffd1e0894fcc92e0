package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/segments/pkg/segments"
	"github.com/mesh-intelligence/segments/pkg/types"
)

func (a *app) segmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Create, inspect and reorganize segments",
	}
	cmd.AddCommand(
		a.segmentCreateCmd(),
		a.segmentGetCmd(),
		a.segmentListCmd(),
		a.segmentSearchCmd(),
		a.segmentUpdateCmd(),
		a.segmentDeleteCmd(),
		a.segmentDuplicateCmd(),
		a.segmentMergeCmd(),
		a.segmentCachedCmd(),
	)
	return cmd
}

func (a *app) segmentCreateCmd() *cobra.Command {
	var color, description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			seg, err := svc.CreateSegment(a.ctx(cmd), args[0], color, description)
			return emit(a, cmd, seg, err)
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "segment color (blue, green, red, yellow, purple, pink, orange, gray)")
	cmd.Flags().StringVar(&description, "description", "", "segment description")
	_ = cmd.MarkFlagRequired("color")
	return cmd
}

func (a *app) segmentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <segment-id>",
		Short: "Show one segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			seg, err := svc.GetSegment(a.ctx(cmd), args[0])
			return emit(a, cmd, seg, err)
		},
	}
}

func (a *app) segmentListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List segments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			segs, err := svc.ListSegments(a.ctx(cmd), limit)
			return emit(a, cmd, segs, err)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", segments.DefaultListLimit, "maximum number of segments")
	return cmd
}

func (a *app) segmentSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Find segments whose name contains term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			segs, err := svc.SearchSegments(a.ctx(cmd), args[0])
			return emit(a, cmd, segs, err)
		},
	}
}

func (a *app) segmentUpdateCmd() *cobra.Command {
	var name, color, description string
	cmd := &cobra.Command{
		Use:   "update <segment-id>",
		Short: "Change a segment's name, color or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd segments.SegmentUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("color") {
				upd.Color = &color
			}
			if cmd.Flags().Changed("description") {
				upd.Description = &description
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			seg, err := svc.UpdateSegment(a.ctx(cmd), args[0], upd)
			return emit(a, cmd, seg, err)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&color, "color", "", "new color")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

type deleteOutput struct {
	SegmentID        string `json:"segment_id" yaml:"segment_id"`
	RelationsRemoved int    `json:"relations_removed" yaml:"relations_removed"`
}

func (a *app) segmentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <segment-id>",
		Short: "Delete a segment and its memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			removed, err := svc.DeleteSegment(a.ctx(cmd), args[0])
			if err != nil {
				return emit[*deleteOutput](a, cmd, nil, err)
			}
			return emit(a, cmd, &deleteOutput{SegmentID: args[0], RelationsRemoved: removed}, nil)
		},
	}
}

func (a *app) segmentDuplicateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "duplicate <segment-id>",
		Short: "Copy a segment with its memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.DuplicateSegment(a.ctx(cmd), args[0], name)
			return emit(a, cmd, res, err)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", `name of the copy (default "<name> (Copy)")`)
	return cmd
}

func (a *app) segmentMergeCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "merge <target-id> <source-id>...",
		Short: "Move every membership of the sources into the target",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.MergeSegments(a.ctx(cmd), args[0], args[1:], !keep)
			return emit(a, cmd, res, err)
		},
	}
	cmd.Flags().BoolVar(&keep, "keep-sources", false, "keep the emptied source segments")
	return cmd
}

type cachedOutput struct {
	Cache    segments.CacheStatus `json:"cache" yaml:"cache"`
	Segments []types.Segment      `json:"segments" yaml:"segments"`
}

func (a *app) segmentCachedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cached",
		Short: "List all segments through the segment list cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			segs, status, err := svc.GetSegmentsCached(a.ctx(cmd))
			if err != nil {
				return emit[*cachedOutput](a, cmd, nil, err)
			}
			return emit(a, cmd, &cachedOutput{Cache: status, Segments: segs}, nil)
		},
	}
}
