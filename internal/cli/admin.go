package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/app"
)

var tokenTTL time.Duration

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		if err := app.Migrate(ctx, cfg); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and repair the job queue",
}

var queueDepthCmd = &cobra.Command{
	Use:   "depth",
	Short: "Show queued jobs per priority",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		depth, err := application.Jobs.QueueDepth(cmd.Context())
		if err != nil {
			return fmt.Errorf("queue depth: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Queued: %d\n", depth.Total)
		priorities := make([]int, 0, len(depth.ByPriority))
		for p := range depth.ByPriority {
			priorities = append(priorities, p)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(priorities)))
		for _, p := range priorities {
			fmt.Fprintf(out, "  priority %d: %d\n", p, depth.ByPriority[p])
		}
		return nil
	},
}

var queueSweepCmd = &cobra.Command{
	Use:   "release-stale",
	Short: "Fail jobs with expired worker leases and settle finished parents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		res, err := application.Ingestor.SweepOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Released %d stale jobs, settled %d parents.\n", res.Released, res.Settled)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <organization-id>",
	Short: "Issue an API token for a tenant",
	Long: `Issue an HS256 token signed with JWT_SECRET for local testing.

Examples:
  contexta-ingest token 6f1c2a4e-8d7b-4c3a-9e5f-1a2b3c4d5e6f --ttl 1h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		if _, err := uuid.Parse(args[0]); err != nil {
			return fmt.Errorf("organization id must be a UUID: %w", err)
		}
		token, err := middleware.IssueToken(cfg.JWTSecret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	queueCmd.AddCommand(queueDepthCmd)
	queueCmd.AddCommand(queueSweepCmd)
}
