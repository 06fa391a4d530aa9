package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get <name>",
		Short:   "Show one registered storage backend",
		Example: `  backendctl get hitachi-vsp --json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			info, err := rt.svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(info)
			}

			fmt.Printf("Name:      %s\n", info.Name)
			fmt.Printf("Type:      %s\n", info.Type)
			fmt.Printf("Principal: %s\n", info.Principal)
			fmt.Printf("Model:     %s\n", info.ModelUUID)
			status := string(info.Status)
			if info.Stale {
				status += " (stale)"
			}
			fmt.Printf("Status:    %s\n", status)
			if len(info.Config) > 0 {
				fmt.Println("Config:")
				keys := make([]string, 0, len(info.Config))
				for k := range info.Config {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, k := range keys {
					fmt.Fprintf(w, "  %s\t%s\n", k, info.Config[k])
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	return cmd
}
