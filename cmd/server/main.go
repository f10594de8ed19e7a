package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/example/reelforge/internal/agents"
	"github.com/example/reelforge/internal/api"
	"github.com/example/reelforge/internal/config"
	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
	"github.com/example/reelforge/internal/orchestrator"
	"github.com/example/reelforge/internal/projects"
	"github.com/example/reelforge/internal/providers/llm"
	"github.com/example/reelforge/internal/tools"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "reelforge",
		Short:         "Novel-to-video generation server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default reelforge.yaml in . or $HOME)")
	root.PersistentFlags().String("projects-dir", "", "directory holding project output")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	_ = v.BindPFlag("projects_dir", root.PersistentFlags().Lookup("projects-dir"))
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().Int("max-connections", 0, "cap on concurrent connections")
	serveCmd.Flags().Duration("decision-interval", 0, "pause between agent iterations")
	_ = v.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("max_connections", serveCmd.Flags().Lookup("max-connections"))
	_ = v.BindPFlag("decision_interval", serveCmd.Flags().Lookup("decision-interval"))

	inspectCmd := &cobra.Command{
		Use:   "inspect <project>",
		Short: "Print which steps a project has completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			rep, err := projects.NewStore(cfg.ProjectsDir).Inspect(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}

	root.AddCommand(serveCmd, inspectCmd)
	return root
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.Log).With("service", "reelforge")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := orchestrator.MustNewMetrics(reg)

	store := projects.NewStore(cfg.ProjectsDir)
	if err := os.MkdirAll(cfg.ProjectsDir, 0o755); err != nil {
		return fmt.Errorf("projects dir: %w", err)
	}
	client := llm.New(ctx, cfg.LLM, log)

	registry, err := buildRegistry(cfg, store, client, log)
	if err != nil {
		return err
	}

	hub := orchestrator.NewHub(cfg.SubscriberBuffer, metrics, log)
	controller := &agents.Controller{
		Client:        client,
		Tools:         registry,
		Journal:       store,
		Log:           log,
		Interval:      cfg.DecisionInterval,
		MaxIterations: cfg.MaxIterations,
	}
	workflow := &orchestrator.WorkflowRunner{Tools: registry, Log: log}
	sched, err := orchestrator.NewScheduler(orchestrator.Dispatcher{
		Workflow: workflow,
		Agent:    &orchestrator.AgentRunner{Controller: controller},
	}, hub, orchestrator.Options{
		HistorySize:  cfg.HistorySize,
		TaskLogLimit: cfg.TaskLogLimit,
		Metrics:      metrics,
		Log:          log,
	})
	if err != nil {
		return err
	}
	controller.Gate = sched.Gate()
	controller.Messages = sched.Messages()
	workflow.Gate = sched.Gate()

	srv := api.New(sched, store, api.Options{
		Defaults: orchestrator.Defaults{QualityTarget: cfg.QualityTarget, MaxAttempts: cfg.MaxAttempts},
		Limits:   tools.ExtractLimits{MaxBytes: int(cfg.MaxDocumentBytes), MaxPages: 500, Timeout: 30 * time.Second},
		Gatherer: reg,
		Log:      log,
	})
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		log.Info("server listening", "addr", ln.Addr().String(), "projects_dir", cfg.ProjectsDir, "tools", registry.Names())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	log.Info("server stopped")
	return err
}

// buildRegistry wires configured external commands plus the built-in
// inspection and evaluation capabilities.
func buildRegistry(cfg config.Config, store *projects.Store, client llm.Client, log logging.Logger) (*tools.Registry, error) {
	reg := tools.NewRegistry(log)
	for _, step := range models.Pipeline {
		tool := step.Tool()
		argv, ok := cfg.Capabilities[tool]
		if !ok {
			log.Warn("capability not configured", "tool", tool)
			continue
		}
		var c tools.Capability = &tools.CommandTool{
			Tool:    tool,
			Argv:    argv,
			Timeout: cfg.CapabilityTimeout,
		}
		if tool == models.ToolVideo {
			c = &tools.VideoFallback{Capability: c, Store: store}
		}
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	if argv, ok := cfg.Capabilities[models.ToolInspect]; ok {
		if err := reg.Register(&tools.CommandTool{Tool: models.ToolInspect, Argv: argv, Timeout: cfg.CapabilityTimeout}); err != nil {
			return nil, err
		}
	} else if err := reg.Register(&tools.InspectTool{Store: store}); err != nil {
		return nil, err
	}

	if argv, ok := cfg.Capabilities[models.ToolEvaluate]; ok {
		if err := reg.Register(&tools.CommandTool{Tool: models.ToolEvaluate, Argv: argv, Timeout: cfg.CapabilityTimeout}); err != nil {
			return nil, err
		}
	} else {
		ev := &tools.EvaluateTool{Store: store, Target: cfg.QualityTarget}
		if cfg.EvaluateWithLLM {
			ev.Client = client
		}
		if err := reg.Register(ev); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
