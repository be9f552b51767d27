package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/tablesync/internal/lock"
	"github.com/dbsmedya/tablesync/internal/replicator"
)

var (
	syncWorkers int
	syncNoLock  bool
	syncVerify  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replicate new rows from master to slave",
	Long: `Sync runs one replication pass over every master table.

For each table:
  - views and other tables without a storage engine are skipped
  - tables without a primary key are skipped
  - a table seen for the first time is created on the slave (if missing)
    and gets a checkpoint at cursor 0; its rows are copied on the next run
  - a table with a checkpoint gets every row above the checkpoint, in
    batches of --limit rows, and the checkpoint is advanced after each batch

A failing table does not stop the others. The command exits non-zero if
any table failed.

Example:
  tablesync sync --master mysql://u:p@db1:3306/app --slave mysql://u:p@db2:3306/app`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 0,
		"Tables synced in parallel (default 1)")
	syncCmd.Flags().BoolVar(&syncNoLock, "no-lock", false,
		"Do not take the run lock on the slave (use with caution)")
	syncCmd.Flags().BoolVar(&syncVerify, "verify", false,
		"Verify synced tables after the run")

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	overrides := GetCLIOverrides()
	overrides.Workers = syncWorkers
	overrides.NoLock = syncNoLock

	s, err := openSession(overrides)
	if err != nil {
		return err
	}
	defer s.Close()

	orch, err := replicator.NewOrchestrator(s.db.Master, s.db.Slave, s.cfg.Sync, s.log)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	result, err := orch.Run(s.ctx)
	if result != nil && len(result.Tables) > 0 {
		newPrinter(cmd.OutOrStdout()).RunSummary(result)
	}
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return fmt.Errorf("another sync is running against this slave (use --no-lock to override): %w", err)
		}
		return fmt.Errorf("sync failed: %w", err)
	}
	if result.Failed() {
		return fmt.Errorf("sync finished with %d failed table(s)", result.FailedCount())
	}

	if syncVerify {
		return verifyCheckpoints(cmd, s, s.cfg.Verification.Method)
	}
	return nil
}
