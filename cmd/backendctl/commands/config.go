package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and update live backend configuration",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigResetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "show <name>",
		Short:   "Show the live charm configuration of a backend",
		Example: `  backendctl config show hitachi-vsp`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			cfg, err := rt.svc.ShowConfig(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cfg)
			}

			keys := make([]string, 0, len(cfg))
			for k := range cfg {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\n", k, cfg[k])
			}
			return w.Flush()
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <key>=<value> ...",
		Short: "Update charm options on a live backend",
		Long: `Update charm configuration options on a live backend.

Credential options are managed through secrets and cannot be set here.`,
		Example: `  backendctl config set hitachi-vsp hitachi-copy-speed=10`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]string, len(args)-1)
			for _, pair := range args[1:] {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid option %q, expected key=value", pair)
				}
				values[key] = value
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			if err := rt.svc.SetConfig(cmd.Context(), args[0], values); err != nil {
				return err
			}
			fmt.Printf("Updated %d option(s) on %s\n", len(values), args[0])
			return nil
		},
	}
}

func newConfigResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "reset <name> <key> ...",
		Short:   "Reset charm options on a live backend to their defaults",
		Example: `  backendctl config reset hitachi-vsp hitachi-copy-speed`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			if err := rt.svc.ResetConfig(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			fmt.Printf("Reset %d option(s) on %s\n", len(args)-1, args[0])
			return nil
		},
	}
}
