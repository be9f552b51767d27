package replicator

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPrimaryKey is returned when a source table has no primary key.
	ErrNoPrimaryKey = errors.New("table has no primary key")

	// ErrDuplicateCheckpoint is returned when creating a checkpoint for a
	// table that already has one.
	ErrDuplicateCheckpoint = errors.New("checkpoint already exists")

	// ErrCheckpointNotAdvanced is returned when an advance matched no row,
	// either because the checkpoint is missing or because the new cursor is
	// lower than the stored one.
	ErrCheckpointNotAdvanced = errors.New("checkpoint not advanced")

	// ErrNonNumericCursor is returned when a cursor value is not an integer.
	ErrNonNumericCursor = errors.New("cursor value is not numeric")

	// ErrTargetTableMissing is returned when a checkpoint exists but the
	// target table does not. The checkpoint row must be removed to bootstrap
	// the table again.
	ErrTargetTableMissing = errors.New("target table missing for existing checkpoint")
)

// BootstrapError wraps a failure while bootstrapping a table.
type BootstrapError struct {
	Table string
	Stage string
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap of %s failed at %s: %v", e.Table, e.Stage, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// isPermanent reports errors that retrying with the same input cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrNonNumericCursor) ||
		errors.Is(err, ErrCheckpointNotAdvanced) ||
		errors.Is(err, ErrNoPrimaryKey)
}
