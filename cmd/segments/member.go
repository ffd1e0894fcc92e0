package main

import (
	"github.com/spf13/cobra"
)

func (a *app) memberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Change which contacts belong to a segment",
	}
	cmd.AddCommand(a.memberAddCmd(), a.memberRemoveCmd(), a.memberMoveCmd())
	return cmd
}

type memberOutput struct {
	ContactID string `json:"contact_id" yaml:"contact_id"`
	SegmentID string `json:"segment_id" yaml:"segment_id"`
}

func (a *app) memberAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <segment-id> <contact-id>...",
		Short: "Add contacts to a segment",
		Long: `Add one or more contacts to a segment. With a single contact the
command fails if the contact is already a member; with several, each
contact is reported separately.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			segmentID, contactIDs := args[0], args[1:]
			if len(contactIDs) == 1 {
				rel, err := svc.AddContactToSegment(a.ctx(cmd), contactIDs[0], segmentID)
				return emit(a, cmd, rel, err)
			}
			res, err := svc.AddContactsToSegment(a.ctx(cmd), contactIDs, segmentID)
			return emit(a, cmd, res, err)
		},
	}
}

func (a *app) memberRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <segment-id> <contact-id>...",
		Short: "Remove contacts from a segment",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			segmentID, contactIDs := args[0], args[1:]
			if len(contactIDs) == 1 {
				err := svc.RemoveContactFromSegment(a.ctx(cmd), contactIDs[0], segmentID)
				if err != nil {
					return emit[*memberOutput](a, cmd, nil, err)
				}
				return emit(a, cmd, &memberOutput{ContactID: contactIDs[0], SegmentID: segmentID}, nil)
			}
			res, err := svc.RemoveContactsFromSegment(a.ctx(cmd), contactIDs, segmentID)
			return emit(a, cmd, res, err)
		},
	}
}

func (a *app) memberMoveCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "move <contact-id>...",
		Short: "Move contacts from one segment to another",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			res, err := svc.MoveContacts(a.ctx(cmd), args, from, to)
			return emit(a, cmd, res, err)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source segment id")
	cmd.Flags().StringVar(&to, "to", "", "target segment id")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
