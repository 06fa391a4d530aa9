package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCommand() *cobra.Command {
	var principal string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered storage backends",
		Long: `List every registered backend, merged with a best-effort live status
query. When the controller is unreachable the persisted data is shown
marked stale. Use --principal to restrict the listing to backends of
one principal application.`,
		Example: `  backendctl list
  backendctl list --principal cinder-volume
  backendctl list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			infos, err := rt.svc.List(cmd.Context(), principal)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(infos)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tPRINCIPAL\tSTATUS")
			for _, info := range infos {
				status := string(info.Status)
				if info.Stale {
					status += " (stale)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Type, info.Principal, status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "only list backends of this principal application")

	return cmd
}
