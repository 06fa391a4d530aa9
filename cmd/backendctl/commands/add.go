package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newAddCommand() *cobra.Command {
	var (
		configFile string
		noWait     bool
	)

	cmd := &cobra.Command{
		Use:   "add <name> <type>",
		Short: "Deploy and register a storage backend",
		Long: `Deploy a storage backend of the given type, relate it to the
principal volume application, and register it.

The backend configuration is read from a YAML file. Credential fields
are published as secrets; the charm only ever sees indirect references.

By default the command waits for the backend to report active before
registering it. With --no-wait the registration happens right after the
relation is established and the backend settles in the background.`,
		Example: `  # Deploy a Hitachi VSP backend and wait for readiness
  backendctl add hitachi-vsp hitachi --config-file hitachi-vsp.yaml

  # Register as soon as the relation exists
  backendctl add hitachi-vsp hitachi --config-file hitachi-vsp.yaml --no-wait`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, typeTag := args[0], args[1]

			raw, err := os.ReadFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to read backend config: %w", err)
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			info, err := rt.svc.Add(cmd.Context(), name, typeTag, raw, !noWait)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(info)
			}
			fmt.Printf("Backend %s (%s) registered, status: %s\n", info.Name, info.Type, info.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config-file", "f", "", "backend configuration file")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "register after integration without waiting for readiness")
	_ = cmd.MarkFlagRequired("config-file")

	return cmd
}
