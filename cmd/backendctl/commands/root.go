package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/overcast-cloud/backendctl/pkg/backends"
	"github.com/overcast-cloud/backendctl/pkg/config"
	"github.com/overcast-cloud/backendctl/pkg/deployer"
	"github.com/overcast-cloud/backendctl/pkg/engine"
	"github.com/overcast-cloud/backendctl/pkg/policy"
	"github.com/overcast-cloud/backendctl/pkg/service"
	"github.com/overcast-cloud/backendctl/pkg/stores"
	"github.com/overcast-cloud/backendctl/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "backendctl",
		Short: "Storage backend orchestration for the principal volume service",
		Long: `backendctl manages the lifecycle of pluggable storage backends:
vendor integrations deployed as charms and related to the principal
volume application.

Each add runs an idempotent step pipeline (validate, deploy, integrate,
wait for readiness, register) that can be safely re-run after an
interruption; each remove tears the backend down and deletes its
registration.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "backendctl.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newAddCommand())
	rootCmd.AddCommand(newRemoveCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newTypesCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// runtime bundles everything a command needs to talk to the engine.
type runtime struct {
	cfg     *config.Config
	svc     *service.Service
	cleanup func()
}

// newRuntime loads the configuration and wires the service: telemetry,
// registration store, deployment helper, registry, and policy engine.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return nil, err
	}
	log.Logger = logger

	metrics, err := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	if err != nil {
		return nil, err
	}

	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing, "backendctl", buildVersion, "cli")
	if err != nil {
		return nil, err
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.StorePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	registry, err := backends.Init()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	policies, err := policy.NewEngine(logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	juju := deployer.NewJujuCLI(cfg.Model,
		deployer.WithCLILogger(logger),
		deployer.WithCLIMetrics(metrics))

	svc := service.New(registry, juju, store, cfg.Model,
		service.WithLogger(logger),
		service.WithMetrics(metrics),
		service.WithTracer(tracer.Tracer()),
		service.WithPolicyEngine(policies),
		service.WithPrincipal(cfg.Principal, cfg.PrincipalEndpoint),
		service.WithWaitPolicy(engine.RetryPolicy{
			Attempts: cfg.Wait.Attempts,
			Delay:    cfg.Wait.Interval,
		}))

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Store close failed")
		}
	}

	return &runtime{cfg: cfg, svc: svc, cleanup: cleanup}, nil
}
