package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/infrapilot/infrapilot/pkg/agent"
	"github.com/infrapilot/infrapilot/pkg/backends"
	"github.com/infrapilot/infrapilot/pkg/config"
	"github.com/infrapilot/infrapilot/pkg/generator"
	"github.com/infrapilot/infrapilot/pkg/stores"
	"github.com/infrapilot/infrapilot/pkg/telemetry"
	"github.com/infrapilot/infrapilot/pkg/transports/ssh"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Generate, deploy, and verify infrastructure from a request",
		Long: `Run the full agent loop for a natural-language infrastructure request.

The request is sent to the code-generation service, the returned CDKTF
TypeScript project is delivered to the execution environment and driven
through the build, synthesize, lint, and deploy phases, and the deployment
outputs are checked against the request. Failures feed corrective context
into the next generation cycle, up to the configured cycle budget.`,
		Example: `  # Deploy locally
  infrapilot run "create an S3 bucket for build artifacts"

  # Deploy via the remote host configured in infrapilot.yaml
  infrapilot -c infrapilot.yaml run "create a VPC with two private subnets"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), args[0])
		},
	}

	return cmd
}

func runAgent(ctx context.Context, prompt string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := buildBackend(ctx, cfg)
	if err != nil {
		return err
	}

	return runLoop(ctx, cfg, prompt, backend)
}

// runLoop wires the remaining collaborators around an already-built backend
// and drives the agent. The backend's ownership transfers to the orchestrator
// when Run starts; any wiring failure before that closes it here.
func runLoop(ctx context.Context, cfg *config.Config, prompt string, backend backends.Backend) error {
	handedOff := false
	defer func() {
		if !handedOff {
			if err := backend.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close backend")
			}
		}
	}()

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("failed to build metrics: %w", err)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddress != "" {
		go func() {
			if err := metrics.Serve(); err != nil {
				log.Warn().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	gen, err := generator.NewHTTPClient(cfg.Generator.Endpoint, cfg.Generator.APIKey)
	if err != nil {
		return err
	}

	var recorder agent.Recorder
	if cfg.Store.Enabled {
		store, err := stores.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		if err := store.Init(ctx); err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		recorder = store
	}

	orch, err := agent.New(agent.Deps{
		Generator: gen,
		Backend:   backend,
		Recorder:  recorder,
		Metrics:   metrics,
		Logger:    logger,
	}, agent.Config{
		MaxCycles: cfg.MaxCycles,
		MaxPasses: cfg.MaxPasses,
		Commands:  cfg.PipelineCommands(),
	})
	if err != nil {
		return err
	}

	handedOff = true
	run, err := orch.Run(ctx, prompt)
	if err != nil {
		return err
	}

	printRunSummary(run)

	if run.Outcome != agent.RunOutcomeSucceeded {
		return fmt.Errorf("run %s finished with outcome %s", run.ID, run.Outcome)
	}
	return nil
}

// buildBackend constructs the execution backend for the configured mode. In
// remote mode the SSH session is connected here so a dead target fails fast.
func buildBackend(ctx context.Context, cfg *config.Config) (backends.Backend, error) {
	if cfg.Mode == config.ModeLocal {
		return backends.NewLocalBackend(cfg.WorkDir)
	}

	client, err := ssh.NewClient(cfg.SSHConfig())
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	backend, err := backends.NewRemoteBackend(client, backends.RemoteConfig{
		WorkDir: cfg.Remote.WorkDir,
		RepoURL: cfg.Remote.RepoURL,
		Env:     cfg.Remote.Env,
	})
	if err != nil {
		_ = client.Disconnect()
		return nil, err
	}
	return backend, nil
}

func printRunSummary(run *agent.RunResult) {
	fmt.Printf("\nRun %s: %s after %d cycle(s) in %s\n", run.ID, run.Outcome, len(run.Cycles), run.Duration.Round(time.Millisecond))

	for _, cycle := range run.Cycles {
		status := string(cycle.Outcome)
		if cycle.Outcome != agent.CycleOutcomeSucceeded && cycle.FailureClass != "" {
			status = fmt.Sprintf("%s (%s)", cycle.Outcome, cycle.FailureClass)
		}
		fmt.Printf("  cycle %d: %s\n", cycle.Index, status)
	}

	outputs := run.LastDeploymentOutputs()
	if len(outputs) == 0 {
		return
	}

	fmt.Println("\nDeployment outputs:")
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		value := outputs[k]
		if idx := strings.IndexByte(value, '\n'); idx >= 0 {
			value = value[:idx] + " ..."
		}
		fmt.Printf("  %s = %s\n", k, value)
	}
}
