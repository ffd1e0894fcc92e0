package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/segments/pkg/segments"
	"github.com/mesh-intelligence/segments/pkg/types"
)

// The contact commands seed and inspect the contacts table. The service
// itself never writes contacts.
func (a *app) contactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Add and list the owner's contacts",
	}
	cmd.AddCommand(a.contactAddCmd(), a.contactListCmd())
	return cmd
}

func (a *app) contactAddCmd() *cobra.Command {
	var c types.Contact
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a contact owned by --owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := segments.OwnerFromContext(a.ctx(cmd))
			if err != nil {
				return err
			}
			if c.Email == "" && c.Phone == "" {
				return fmt.Errorf("%w: --email or --phone is required", segments.ErrValidation)
			}
			table, err := a.table(types.ContactsTable)
			if err != nil {
				return err
			}
			c.OwnerID = owner
			id, err := table.Set(cmd.Context(), "", &c)
			if err != nil {
				return emit[*types.Contact](a, cmd, nil, fmt.Errorf("creating contact: %w", err))
			}
			c.ContactID = id
			return emit(a, cmd, &c, nil)
		},
	}
	cmd.Flags().StringVar(&c.Email, "email", "", "email address")
	cmd.Flags().StringVar(&c.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&c.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&c.LastName, "last-name", "", "last name")
	return cmd
}

func (a *app) contactListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the owner's contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := segments.OwnerFromContext(a.ctx(cmd))
			if err != nil {
				return err
			}
			table, err := a.table(types.ContactsTable)
			if err != nil {
				return err
			}
			page, err := table.Fetch(cmd.Context(), types.Eq("owner_id", owner))
			if err != nil {
				return emit[[]*types.Contact](a, cmd, nil, fmt.Errorf("listing contacts: %w", err))
			}
			contacts := make([]*types.Contact, 0, len(page.Documents))
			for _, doc := range page.Documents {
				if c, ok := doc.(*types.Contact); ok {
					contacts = append(contacts, c)
				}
			}
			return emit(a, cmd, contacts, nil)
		},
	}
}
