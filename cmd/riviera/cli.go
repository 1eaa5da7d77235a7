package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"riviera/internal/agent"
	"riviera/internal/apicall"
	"riviera/internal/batch"
	"riviera/internal/config"
	"riviera/internal/events"
	"riviera/internal/llm"
	"riviera/internal/logging"
	"riviera/internal/observability"
	"riviera/internal/server"
	"riviera/internal/storage"
	"riviera/internal/tool"
	"riviera/internal/tool/adapter"
)

const version = "0.3.0"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// app is the wired runtime shared by the subcommands.
type app struct {
	cfg         *config.Config
	logger      logging.Logger
	client      *llm.Client
	registry    *tool.Registry
	coordinator *batch.Coordinator
	hub         *events.Hub
	metrics     *observability.MetricsCollector
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.NewComponentLogger("riviera")

	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key configured, set RIVIERA_LLM_API_KEY or ANTHROPIC_API_KEY")
	}

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout(),
	})

	metrics, err := observability.NewMetricsCollector(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	factory := adapter.NewFactory()
	registry := tool.NewRegistry(tool.Deps{
		Configs: storage.NewFileToolConfigStore(cfg.Storage.TenantsDir()),
		Secrets: storage.NewFileSecretStore(cfg.Storage.TenantsDir()),
		Factory: func(toolType string) (tool.ExternalExecutor, error) {
			return factory.New(toolType, logger)
		},
		Logger: logger,
	})

	jobs, err := storage.NewFileJobStore(cfg.Storage.JobsDir(), logger)
	if err != nil {
		return nil, err
	}

	hub := events.NewHub(logger)
	notifier := events.MultiNotifier{events.NewLogNotifier(logger), hub}
	coordinator := batch.NewCoordinator(client, jobs, notifier, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		client:      client,
		registry:    registry,
		coordinator: coordinator,
		hub:         hub,
		metrics:     metrics,
	}, nil
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "riviera",
		Short:         "Agent tool-execution and batch-generation runtime",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newBatchCommand(&configPath))
	root.AddCommand(newToolsCommand(&configPath))
	root.AddCommand(newAgentCommand(&configPath))
	return root
}

func newAgentCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run one agent task",
	}

	var (
		websiteID string
		system    string
		model     string
		asJSON    bool
	)
	run := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run the tool-use loop for one prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}

			contentStore := storage.NewFileContentStore(a.cfg.Storage.TenantsDir())
			a.registry.RegisterAll(agent.BuiltinTools(contentStore))
			if err := a.registry.LoadExternalTools(cmd.Context(), websiteID); err != nil {
				a.logger.Warn("external tools unavailable for %s: %v", websiteID, err)
			}
			defer a.registry.Dispose(cmd.Context())

			builder := apicall.NewBuilder(a.registry, apicall.BuilderConfig{
				DefaultModel:     a.cfg.Agent.Model,
				DefaultMaxTokens: a.cfg.Agent.MaxTokens,
				Logger:           a.logger,
			})
			runner := agent.NewRunner(a.registry, builder, a.client, a.metrics, agent.RunnerConfig{
				AgentID:       "cli",
				AgentName:     "riviera-cli",
				Model:         model,
				MaxTokens:     a.cfg.Agent.MaxTokens,
				MaxIterations: a.cfg.Agent.MaxIterations,
				Logger:        a.logger,
			})

			result, err := runner.Run(cmd.Context(), agent.RunParams{
				WebsiteID:  websiteID,
				System:     system,
				Prompt:     args[0],
				DecodeJSON: asJSON,
			})
			if err != nil {
				return err
			}
			if asJSON {
				doc, err := json.MarshalIndent(result.Document, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(doc))
			} else {
				fmt.Println(result.Text)
			}
			fmt.Printf("\n%s %d iterations, %d tool calls, %d+%d tokens, $%.4f\n",
				green("done:"), result.Iterations, result.ToolCalls,
				result.InputTokens, result.OutputTokens, result.EstimatedCost)
			return nil
		},
	}
	run.Flags().StringVar(&websiteID, "website", "", "Website id")
	run.Flags().StringVar(&system, "system", "", "System prompt")
	run.Flags().StringVar(&model, "model", "", "Model override")
	run.Flags().BoolVar(&asJSON, "json", false, "Require a JSON object reply and print it")
	_ = run.MarkFlagRequired("website")

	cmd.AddCommand(run)
	return cmd
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}

			srv := server.New(server.Config{
				Addr: a.cfg.Server.Addr(),
				CORS: a.cfg.Server.CORS,
			}, a.coordinator, a.registry, a.hub, a.logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				a.logger.Info("received %s, shutting down", sig)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.registry.Dispose(ctx)
			_ = a.metrics.Shutdown(ctx)
			return srv.Shutdown(ctx)
		},
	}
}

func newBatchCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Bulk-generation jobs",
	}

	var (
		collection string
		villages   []string
		websiteID  string
		items      int
	)
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a bulk-generation batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			if len(villages) == 0 {
				villages = batch.Villages
			}
			if items <= 0 {
				items = a.cfg.Batch.ItemsPerVillage
			}

			job, err := a.coordinator.Submit(cmd.Context(), batch.SubmitParams{
				CollectionType:  collection,
				Villages:        villages,
				WebsiteID:       websiteID,
				ItemsPerVillage: items,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s job %s (batch %s)\n", green("submitted"), bold(job.ID), job.BatchID)
			fmt.Printf("  %s x %d villages, %d items each\n", cyan(collection), len(villages), items)
			return nil
		},
	}
	submit.Flags().StringVar(&collection, "collection", "", "Collection type (restaurants, accommodations, pois, events, transportation, weather)")
	submit.Flags().StringSliceVar(&villages, "villages", nil, "Villages to generate for (default: all five)")
	submit.Flags().StringVar(&websiteID, "website", "", "Website id")
	submit.Flags().IntVar(&items, "items", 0, "Items per village")
	_ = submit.MarkFlagRequired("collection")
	_ = submit.MarkFlagRequired("website")

	status := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Poll one job against the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			result, err := a.coordinator.CheckStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(result.Job)
			if result.Completed {
				fmt.Printf("  %s results_url: %s\n", green("ended"), result.ResultsURL)
			} else {
				fmt.Printf("  %s %d processing, %d errored\n", yellow(result.Job.Status),
					result.Counts.Processing, result.Counts.Errored)
			}
			return nil
		},
	}

	var listWebsite, listStatus string
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs for a website",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			jobs, err := a.coordinator.List(cmd.Context(), listWebsite, batch.ListFilter{Status: listStatus})
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no jobs")
				return nil
			}
			for _, job := range jobs {
				printJob(job)
			}
			return nil
		},
	}
	list.Flags().StringVar(&listWebsite, "website", "", "Website id")
	list.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	_ = list.MarkFlagRequired("website")

	cmd.AddCommand(submit, status, list)
	return cmd
}

func newToolsCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Tool registry inspection",
	}

	var websiteID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tools available to a website's agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			if websiteID != "" {
				if err := a.registry.LoadExternalTools(cmd.Context(), websiteID); err != nil {
					return err
				}
				defer a.registry.Dispose(cmd.Context())
			}
			for _, def := range a.registry.DefinitionsWithExternal() {
				fmt.Printf("%s  %s\n", bold(def.Name), def.Description)
			}
			fmt.Printf("\n%d tools (%d external)\n", len(a.registry.AllToolNames()), a.registry.ExternalCount())
			return nil
		},
	}
	list.Flags().StringVar(&websiteID, "website", "", "Load this website's external tools too")

	cmd.AddCommand(list)
	return cmd
}

func printJob(job *batch.Job) {
	statusColor := yellow
	if job.Status == batch.StatusEnded {
		statusColor = green
	}
	fmt.Printf("%s  %s  %s  %d/%d  %s\n",
		bold(job.ID), cyan(job.CollectionType), statusColor(job.Status),
		job.ItemsProcessed, job.ItemsCount,
		job.CreatedAt.Format(time.RFC3339))
	if !isInteractive() {
		return
	}
	if villages, ok := job.Metadata["villages"].([]any); ok {
		names := make([]string, 0, len(villages))
		for _, v := range villages {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
		fmt.Printf("  villages: %s\n", strings.Join(names, ", "))
	}
}
