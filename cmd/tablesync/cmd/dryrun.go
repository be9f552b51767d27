package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/tablesync/internal/replicator"
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Show what sync would do without writing",
	Long: `Dry-run connects to both databases and reports, per table, whether a
sync would bootstrap it, catch it up or skip it, together with the number
of pending rows and batches. Nothing is written to the slave, not even the
checkpoint table.

Example:
  tablesync dry-run --master mysql://u:p@db1:3306/app --slave mysql://u:p@db2:3306/app`,
	RunE: runDryRun,
}

func init() {
	rootCmd.AddCommand(dryRunCmd)
}

func runDryRun(cmd *cobra.Command, args []string) error {
	s, err := openSession(GetCLIOverrides())
	if err != nil {
		return err
	}
	defer s.Close()

	planner, err := replicator.NewPlanner(s.db.Master, s.db.Slave, s.cfg.Sync, s.log)
	if err != nil {
		return fmt.Errorf("failed to create planner: %w", err)
	}

	plan, err := planner.Plan(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to compute plan: %w", err)
	}

	newPrinter(cmd.OutOrStdout()).Plan(plan)
	return nil
}
