// Command profilejobs runs and feeds the profile analysis pipeline.
//
// Subcommands:
//
//	worker     worker pool, health and metrics server
//	submit     submit one analysis, inline if the broker is down
//	status     show a job record
//	snapshots  list stored snapshots for a requester/subject pair
//	migrate    create the postgres snapshot table
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/config"
	"github.com/Abraxas-365/profilejobs/pkg/errx"
	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/Abraxas-365/profilejobs/pkg/kernel"
	"github.com/Abraxas-365/profilejobs/pkg/lifecycle"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
	"github.com/Abraxas-365/profilejobs/pkg/snapshot/snapshotpg"
	"github.com/spf13/cobra"
)

// exitCodeError carries a process exit code out of a command.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func main() {
	root := &cobra.Command{
		Use:           "profilejobs",
		Short:         "Background profile analysis jobs",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))
		},
	}

	root.AddCommand(
		workerCmd(),
		submitCmd(),
		statusCmd(),
		snapshotsCmd(),
		migrateCmd(),
	)

	if err := root.Execute(); err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		logx.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func loadContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return NewContainer(ctx, cfg)
}

// ── worker ───────────────────────────────────────────────────────────────────

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the worker pool with health and metrics endpoints",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	logx.Info("🚀 Starting profilejobs worker...")

	c, err := loadContainer(cmd.Context())
	if err != nil {
		return err
	}
	cfg := c.Config

	app := newServer(serverDeps{
		Broker:   c.Connection,
		Stats:    c.Queue,
		Jobs:     c.Queue,
		Storage:  c.CheckStorage,
		InFlight: c.Pool.InFlight,
		Gatherer: c.Registry,
	})

	sup := lifecycle.New(c.Pool,
		lifecycle.WithShutdownTimeout(cfg.Jobx.ShutdownTimeout),
		lifecycle.WithCleanup("http", app.ShutdownWithContext),
		lifecycle.WithCleanup("inline", c.CloseInline),
		lifecycle.WithCleanup("infrastructure", c.Cleanup),
	)
	sup.Go("http", func(context.Context) error {
		logx.Infof("💚 Health: http://localhost%s/health  📈 Metrics: /metrics", cfg.Server.Addr)
		return app.Listen(cfg.Server.Addr)
	})

	if code := sup.Run(cmd.Context()); code != lifecycle.ExitOK {
		return exitCodeError{code: code}
	}
	logx.Info("✅ Worker exited successfully")
	return nil
}

// ── submit ───────────────────────────────────────────────────────────────────

func submitCmd() *cobra.Command {
	var connectWait time.Duration
	cmd := &cobra.Command{
		Use:   "submit <requester> <subject>",
		Short: "Submit one profile analysis",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, args[0], args[1], connectWait)
		},
	}
	cmd.Flags().DurationVar(&connectWait, "connect-wait", 2*time.Second, "how long to wait for the broker before running inline")
	return cmd
}

func runSubmit(cmd *cobra.Command, requester, subject string, connectWait time.Duration) error {
	ctx := cmd.Context()
	c, err := loadContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Cleanup(context.Background())

	waitCtx, cancel := context.WithTimeout(ctx, connectWait)
	c.Connection.WaitReady(waitCtx)
	cancel()

	handle, err := c.Submitter.Submit(ctx, requester, subject)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, handle); err != nil {
		return err
	}

	if handle.Mode == jobx.ModeInline {
		// The inline attempt is bounded by the job timeout.
		drain, cancel := context.WithTimeout(context.Background(), c.Config.Jobx.JobTimeout+c.Config.Jobx.ShutdownTimeout)
		defer cancel()
		if err := c.CloseInline(drain); err != nil {
			return exitCodeError{code: lifecycle.ExitForced}
		}
	}
	return nil
}

// ── status ───────────────────────────────────────────────────────────────────

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id> | status <requester> <subject>",
		Short: "Show a job record",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			if len(args) == 2 {
				jobID = kernel.NewJobID(kernel.NewRequesterID(args[0]), kernel.NewSubjectKey(args[1])).String()
			}
			return runStatus(cmd, jobID)
		},
	}
}

func runStatus(cmd *cobra.Command, jobID string) error {
	ctx := cmd.Context()
	c, err := loadContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Cleanup(context.Background())

	waitCtx, cancel := context.WithTimeout(ctx, c.Config.Redis.ConnectTimeout)
	defer cancel()
	if !c.Connection.WaitReady(waitCtx) {
		return errx.External("broker not ready").WithDetail("state", string(c.Connection.State()))
	}

	info, err := c.Queue.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return printJSON(cmd, info)
}

// ── snapshots ────────────────────────────────────────────────────────────────

func snapshotsCmd() *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "snapshots <requester> <subject>",
		Short: "List stored snapshots, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Cleanup(context.Background())

			if latest {
				snap, err := c.Snapshots.Latest(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, snap)
			}
			list, err := c.Snapshots.List(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "show only the newest snapshot")
	return cmd
}

// ── migrate ──────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres snapshot schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Cleanup(context.Background())

			store, ok := c.Snapshots.(*snapshotpg.PostgresStore)
			if !ok {
				return errx.Validation("migrate needs SNAPSHOT_BACKEND=" + config.BackendPostgres).
					WithDetail("backend", c.Config.Snapshot.Backend)
			}
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			logx.Info("✅ Snapshot schema is up to date")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
