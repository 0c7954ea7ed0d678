package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"kb-auditor/internal/migrate"
	"kb-auditor/internal/shared/lock"
)

var cleanupDays int

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one audit batch and print the result",
		RunE:  runBatch,
	})

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired memory locks and old resolved audit records",
		RunE:  runCleanup,
	}
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention in days for resolved records (default: queue.retention_days)")
	rootCmd.AddCommand(cleanupCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "unlock <memory_id>",
		Short: "Force-release the lock held on a memory",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnlock,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate-sqlite <path>",
		Short: "Copy a legacy SQLite audit_queue table into the Redis audit queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrate,
	})
}

func runBatch(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	aud, err := a.newAuditor(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	res, err := aud.AnalyzeAndFlagMemories(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	locks, err := a.infra.Locker.CleanupExpired(ctx, a.cfg.Lock.JanitorMaxAge)
	if err != nil {
		return fmt.Errorf("cleanup locks: %w", err)
	}

	days := cleanupDays
	if days <= 0 {
		days = a.cfg.Queue.RetentionDays
	}
	records, err := a.infra.Queue.CleanupProcessed(ctx, days)
	if err != nil {
		return fmt.Errorf("cleanup audit records: %w", err)
	}
	return printJSON(cmd, map[string]int{"locks": locks, "records": records, "retention_days": days})
}

func runUnlock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	released, err := a.infra.Locker.ForceRelease(ctx, lock.MemoryKey(args[0]))
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{"memory_id": args[0], "released": released})
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := migrate.MigrateFile(ctx, args[0], a.infra.Queue, a.logger.Named("migrate"))
	if err != nil {
		return err
	}
	return printJSON(cmd, rep)
}
