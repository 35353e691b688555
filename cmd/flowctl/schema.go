package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the template tables",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Create the template tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, closeStore, err := openStore(cmd.Context(), o)
				if err != nil {
					return err
				}
				defer closeStore()
				if err := store.CreateSchema(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema created")
				return nil
			},
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop the template tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, closeStore, err := openStore(cmd.Context(), o)
				if err != nil {
					return err
				}
				defer closeStore()
				if err := store.DropSchema(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema dropped")
				return nil
			},
		},
	)
	return cmd
}
