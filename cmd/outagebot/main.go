// Command outagebot runs the outage schedule bot.
//
// Usage:
//
//	outagebot run --config ./config.yaml
//	outagebot refresh          # one refresh cycle plus change broadcasts
//	outagebot tick             # one notification scheduler pass
//	outagebot prune            # purge old sent-event ledger rows
//	outagebot migrate          # apply storage migrations and exit
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"outagebot/internal/app"
	"outagebot/internal/config"
)

func main() {
	var cfgPath, envPath string

	root := &cobra.Command{
		Use:           "outagebot",
		Short:         "Power outage schedule bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	root.PersistentFlags().StringVar(&envPath, "env-file", ".env", "optional dotenv file")

	root.AddCommand(runCmd(&cfgPath))
	root.AddCommand(refreshCmd(&cfgPath))
	root.AddCommand(tickCmd(&cfgPath))
	root.AddCommand(pruneCmd(&cfgPath))
	root.AddCommand(migrateCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot: chat commands, periodic refresh and alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := app.New(ctx, *cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			_ = a.Stop(stopCtx, reason)
			if reason == app.StopFatalError {
				return a.Err()
			}
			return nil
		},
	}
}

// oneShot builds the app, runs fn and releases resources. Polling and the
// periodic tasks are not started.
func oneShot(cfgPath string, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := app.New(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func refreshCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle and broadcast changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(*cfgPath, func(ctx context.Context, a *app.App) error {
				res, err := a.RefreshOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: changed=%t changes=%d days=%d\n",
					res.CycleID, res.Changed, len(res.Changes), len(res.DayStatus))
				return nil
			})
		},
	}
}

func tickCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one notification scheduler pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(*cfgPath, func(ctx context.Context, a *app.App) error {
				return a.TickOnce(ctx)
			})
		},
	}
}

func pruneCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Purge sent-event ledger rows past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(*cfgPath, func(ctx context.Context, a *app.App) error {
				n, err := a.Prune(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d row(s)\n", n)
				return nil
			})
		},
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return app.Migrate(ctx, *cfgPath)
		},
	}
}
