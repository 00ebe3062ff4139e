package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/orcd/internal/broker"
	orcdconfig "github.com/nextlevelbuilder/orcd/internal/config"
	"github.com/nextlevelbuilder/orcd/internal/launch"
	"github.com/nextlevelbuilder/orcd/internal/layout"
	"github.com/nextlevelbuilder/orcd/internal/netutil"
	"github.com/nextlevelbuilder/orcd/internal/registry"
	"github.com/nextlevelbuilder/orcd/internal/shutdown"
	"github.com/nextlevelbuilder/orcd/internal/supervisor"
	"github.com/nextlevelbuilder/orcd/internal/telemetry"
	"github.com/nextlevelbuilder/orcd/internal/terminal"
)

func serveCmd() *cobra.Command {
	var contextName string
	var agentNames []string
	var workingDir string
	var force bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Launch a team context: tmux session, agent panes, broker, and registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if contextName == "" {
				return fmt.Errorf("--context is required")
			}
			if len(agentNames) == 0 {
				return fmt.Errorf("--agents is required (comma-separated names)")
			}
			return runServe(contextName, agentNames, workingDir, force)
		},
	}

	cmd.Flags().StringVar(&contextName, "context", "", "team context name")
	cmd.Flags().StringSliceVar(&agentNames, "agents", nil, "comma-separated agent names")
	cmd.Flags().StringVar(&workingDir, "workdir", "", "working directory for launched agents (default: cwd)")
	cmd.Flags().BoolVar(&force, "force", false, "kill and replace a pre-existing tmux session of the same name instead of failing")
	return cmd
}

func runServe(contextName string, agentNames []string, workingDir string, force bool) error {
	log := slog.Default()

	cfg, err := orcdconfig.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTrace, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	layoutCfg, err := resolveLayout(cfg.Tmux.Layout)
	if err != nil {
		return fmt.Errorf("resolve layout: %w", err)
	}

	term := terminal.New(cfg.Tmux.SessionName, log)
	builder := launch.DefaultBuilder{LauncherPath: cfg.Supervisor.LauncherPath}

	sup := supervisor.New(log, supervisor.Config{
		PollInterval:        time.Duration(cfg.Supervisor.PollIntervalMS) * time.Millisecond,
		MonitorInterval:     time.Duration(cfg.Supervisor.MonitorIntervalMS) * time.Millisecond,
		StabilizationPeriod: time.Duration(cfg.Supervisor.StabilizationSeconds) * time.Second,
		AgentIdleTimeout:    time.Duration(cfg.Supervisor.AgentIdleTimeoutSecs) * time.Second,
		ShutdownTimeout:     time.Duration(cfg.Supervisor.ShutdownTimeoutSecs) * time.Second,
		Enhanced:            cfg.Supervisor.Enhanced,
		Layout:              layoutCfg,
		ContextName:         contextName,
		Force:               force,
	}, term, builder)

	for _, name := range agentNames {
		if err := sup.RegisterAgent(name, "", "", workingDir); err != nil {
			return fmt.Errorf("register agent %q: %w", name, err)
		}
	}

	port, err := netutil.FindServicePort("broker", cfg.Broker.PreferredPort, log)
	if err != nil {
		return fmt.Errorf("find broker port: %w", err)
	}

	brokerSrv := broker.New(fmt.Sprintf("127.0.0.1:%d", port), sup, log)

	reg, err := registry.New(resolveRegistryPath(cfg), log)
	if err != nil {
		return fmt.Errorf("open context registry: %w", err)
	}

	var history *registry.HistoryStore
	var historyRunID int64
	if cfg.Registry.HistoryDBPath != "" {
		history, err = registry.OpenHistoryStore(resolveHistoryDBPath(cfg))
		if err != nil {
			log.Warn("history store open failed, continuing without run history", slog.Any("error", err))
			history = nil
		}
	}

	if err := sup.Start(ctx, port); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	if err := reg.Create(registry.TeamContext{
		ContextName: contextName,
		TmuxSession: cfg.Tmux.SessionName,
		WorkingDir:  workingDir,
	}); err != nil {
		log.Warn("context registry create failed", slog.Any("error", err))
	}

	if history != nil {
		id, err := history.RecordRunStart(contextName, cfg.Tmux.SessionName, workingDir, len(agentNames))
		if err != nil {
			log.Warn("history record run start failed", slog.Any("error", err))
		} else {
			historyRunID = id
		}
	}

	if cfg.Telemetry.ExportSchedule != "" {
		sup.StartScheduledExport(ctx, cfg.Telemetry.ExportSchedule)
	}

	shutdownTimeout := time.Duration(cfg.Supervisor.ShutdownTimeoutSecs) * time.Second

	sc := shutdown.New(log)
	sc.Register("broker", func() error { return brokerSrv.Shutdown(shutdownTimeout) }, shutdownTimeout, true)
	sc.Register("supervisor", func() error { return sup.Stop(context.Background()) }, shutdownTimeout, true)
	sc.Register("telemetry", func() error { return shutdownTrace(context.Background()) }, 5*time.Second, false)
	if history != nil {
		sc.Register("history", func() error {
			if historyRunID != 0 {
				if err := history.RecordRunEnd(historyRunID); err != nil {
					log.Warn("history record run end failed", slog.Any("error", err))
				}
			}
			return history.Close()
		}, 5*time.Second, false)
	}

	go func() {
		if err := brokerSrv.ListenAndServe(); err != nil {
			log.Error("broker stopped", slog.Any("error", err))
		}
	}()

	log.Info("orcd serving", slog.String("context", contextName), slog.Int("broker_port", port), slog.Any("agents", agentNames))
	sc.Wait(ctx)
	cancel()
	return nil
}

func resolveRegistryPath(cfg *orcdconfig.Config) string {
	if strings.HasPrefix(cfg.Registry.Path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + cfg.Registry.Path[1:]
		}
	}
	return cfg.Registry.Path
}

func resolveHistoryDBPath(cfg *orcdconfig.Config) string {
	if strings.HasPrefix(cfg.Registry.HistoryDBPath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + cfg.Registry.HistoryDBPath[1:]
		}
	}
	return cfg.Registry.HistoryDBPath
}

func resolveLayout(fl orcdconfig.FlexibleLayout) (layout.Config, error) {
	if fl.Kind == "" {
		tmpl, ok := layout.Templates[fl.TemplateName]
		if !ok {
			return layout.Config{}, fmt.Errorf("unknown layout template %q", fl.TemplateName)
		}
		return tmpl, nil
	}

	splits := make([]layout.Split, 0, len(fl.Splits))
	for _, s := range fl.Splits {
		splits = append(splits, layout.Split{Target: s.Target, Direction: s.Direction, SizePct: s.SizePct})
	}
	return layout.Config{
		Kind:    layout.Kind(fl.Kind),
		Rows:    fl.Rows,
		Cols:    fl.Cols,
		MainPct: fl.MainPct,
		Splits:  splits,
	}, nil
}
