package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTypesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "types",
		Short:   "List available backend types",
		Example: `  backendctl types`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			types := rt.svc.Types()
			if jsonOutput {
				return printJSON(types)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tCHARM")
			for _, t := range types {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.Type, t.DisplayName, t.Charm)
			}
			return w.Flush()
		},
	}

	return cmd
}
