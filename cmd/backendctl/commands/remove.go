package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a storage backend and its registration",
		Long: `Remove the backend application and delete its registration.

Removing a backend that is already gone succeeds without error, so the
command is safe to re-run after a partial removal.`,
		Example: `  backendctl remove hitachi-vsp`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			if err := rt.svc.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Backend %s removed\n", args[0])
			return nil
		},
	}

	return cmd
}
