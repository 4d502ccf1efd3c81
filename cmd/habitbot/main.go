// Package main is the entry point for the habitbot CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"habitbot/internal/app"
	"habitbot/internal/config"
	"habitbot/internal/storage"
	logx "habitbot/pkg/logx"
)

// Set by ldflags.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "habitbot",
		Short:         "Telegram bot that reminds you about habits and deadlines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "./config.yaml", "path to config file (json or yaml)")
	root.AddCommand(runCmd(), configCmd(), itemsCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "habitbot %s\n", version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			a, err := app.New(cfgPath, app.WithVersion(version))
			if err != nil {
				return err
			}
			startErr := a.Start(context.Background())

			reason := app.StopFatalError
			if startErr == nil {
				select {
				case sig := <-sigs:
					reason = app.StopReasonFromSignal(sig)
				case <-a.Done():
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = a.Stop(ctx, reason)

			if startErr != nil {
				return fmt.Errorf("start: %w", startErr)
			}
			return a.Err()
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.NewManager(cfgPath, logx.Nop()).Load()
			if err != nil {
				return err
			}
			d, err := config.ParseDurations(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%s)\n", cfgPath)
			fmt.Fprintf(out, "  storage:          %s\n", storageLabel(cfg))
			fmt.Fprintf(out, "  reminder warm-up: %s\n", d.ReminderWarmup)
			fmt.Fprintf(out, "  default interval: %s\n", d.DefaultInterval)
			fmt.Fprintf(out, "  http:             %t\n", cfg.HTTP.Enabled)
			return nil
		},
	})
	return cmd
}

func storageLabel(cfg *config.Config) string {
	if cfg.Storage.Path == "" {
		return cfg.Storage.Driver
	}
	return cfg.Storage.Driver + " " + cfg.Storage.Path
}

func itemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect stored habits and deadlines",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List one owner's items, or every active item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			owner, _ := cmd.Flags().GetInt64("owner")

			cfg, err := config.NewManager(cfgPath, logx.Nop()).Load()
			if err != nil {
				return err
			}
			store, err := storage.Open(storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}, logx.Nop())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			var items []storage.Item
			if owner != 0 {
				items, err = store.ListByOwner(ctx, owner)
			} else {
				items, err = store.ListActive(ctx)
			}
			if err != nil {
				return err
			}
			printItems(cmd, items)
			return nil
		},
	}
	list.Flags().Int64("owner", 0, "owner (Telegram user) id; 0 lists every active item")
	cmd.AddCommand(list)
	return cmd
}

func printItems(cmd *cobra.Command, items []storage.Item) {
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "no items")
		return
	}
	for _, it := range items {
		detail := "every " + it.ReminderInterval.String()
		if it.Kind == storage.KindDeadline {
			detail = "due " + it.DeadlineAt.UTC().Format("02.01.2006 15:04") + " UTC"
		}
		status := "active"
		if it.Done {
			status = "done"
		}
		fmt.Fprintf(out, "%d\towner=%d\t%s\t%s\t%s\t%s\n", it.ID, it.OwnerID, it.Kind, status, it.Title, detail)
	}
}
