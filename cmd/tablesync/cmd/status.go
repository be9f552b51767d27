package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/tablesync/internal/config"
	"github.com/dbsmedya/tablesync/internal/replicator"
	"github.com/dbsmedya/tablesync/internal/report"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the checkpoints stored on the slave",
	Long: `Status prints one line per replicated table with its cursor column,
last synced cursor value, total rows synced and timestamps.

Example:
  tablesync status --config tablesync.yaml --output yaml`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table",
		"Output format (table, yaml)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusOutput != "table" && statusOutput != "yaml" {
		return &config.ConfigurationError{Err: fmt.Errorf("unsupported output format %q (table, yaml)", statusOutput)}
	}

	s, err := openSession(GetCLIOverrides())
	if err != nil {
		return err
	}
	defer s.Close()

	checkpoints, err := listCheckpoints(s)
	if err != nil {
		return err
	}

	if statusOutput == "yaml" {
		return report.WriteCheckpointsYAML(cmd.OutOrStdout(), s.cfg.Sync.CheckpointTable, checkpoints)
	}
	newPrinter(cmd.OutOrStdout()).Checkpoints(s.cfg.Sync.CheckpointTable, checkpoints)
	return nil
}

// listCheckpoints reads all checkpoints. A missing checkpoint table means
// nothing was synced yet and is not an error.
func listCheckpoints(s *session) ([]replicator.Checkpoint, error) {
	table := s.cfg.Sync.CheckpointTable
	exists, err := s.db.Slave.TableExists(s.ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to check checkpoint table: %w", err)
	}
	if !exists {
		return nil, nil
	}

	store, err := replicator.NewCheckpointStore(s.db.Slave, table, s.log)
	if err != nil {
		return nil, err
	}
	return store.List(s.ctx)
}
