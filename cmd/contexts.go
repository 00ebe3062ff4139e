package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	orcdconfig "github.com/nextlevelbuilder/orcd/internal/config"
	"github.com/nextlevelbuilder/orcd/internal/registry"
)

func contextsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "Inspect and manage registered team contexts",
	}
	cmd.AddCommand(contextsListCmd())
	cmd.AddCommand(contextsGetCmd())
	cmd.AddCommand(contextsResumeCmd())
	cmd.AddCommand(contextsDeleteCmd())
	cmd.AddCommand(contextsHistoryCmd())
	return cmd
}

func openRegistry() (*registry.Registry, error) {
	cfg, err := orcdconfig.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return registry.New(resolveRegistryPath(cfg), slog.Default())
}

func contextsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all registered team contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			for _, c := range reg.List() {
				fmt.Printf("%s\tsession=%s\tagents=%d\n", c.ContextName, c.TmuxSession, len(c.Agents))
			}
			return nil
		},
	}
}

func contextsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show a team context as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			c, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("context %q not found", args[0])
			}
			data, err := json.MarshalIndent(c, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func contextsResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <name>",
		Short: "Validate a context is resumable (every agent has a recorded transcript)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			c, err := reg.Resume(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("context %q is resumable: session=%s, %d agent(s)\n", c.ContextName, c.TmuxSession, len(c.Agents))
			return nil
		},
	}
}

func contextsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a team context from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			return reg.Delete(args[0])
		},
	}
}

func contextsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <name>",
		Short: "List past runs recorded for a team context (requires registry.history_db_path)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := orcdconfig.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Registry.HistoryDBPath == "" {
				return fmt.Errorf("registry.history_db_path is not configured; no run history is recorded")
			}
			store, err := registry.OpenHistoryStore(resolveHistoryDBPath(cfg))
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer store.Close()

			runs, err := store.QueryRuns(args[0])
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Printf("no recorded runs for context %q\n", args[0])
				return nil
			}
			for _, r := range runs {
				ended := "running"
				if r.EndedAt.Valid {
					ended = r.EndedAt.Time.Format("2006-01-02T15:04:05Z07:00")
				}
				fmt.Printf("run=%d session=%s agents=%d started=%s ended=%s\n",
					r.ID, r.TmuxSession, r.AgentCount, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), ended)
			}
			return nil
		},
	}
}
