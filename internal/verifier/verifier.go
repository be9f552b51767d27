// Package verifier compares the synced prefix of each table between the
// source and the target.
package verifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/dbsmedya/tablesync/internal/database"
	"github.com/dbsmedya/tablesync/internal/logger"
	"github.com/dbsmedya/tablesync/internal/types"
)

// VerificationMethod defines how to verify data integrity.
type VerificationMethod string

const (
	// MethodCount compares row counts (fast)
	MethodCount VerificationMethod = "count"
	// MethodSHA256 compares a hash of every row in cursor order
	MethodSHA256 VerificationMethod = "sha256"
)

// ParseMethod converts a configured method name. Empty means count.
func ParseMethod(s string) (VerificationMethod, error) {
	switch VerificationMethod(s) {
	case "", MethodCount:
		return MethodCount, nil
	case MethodSHA256:
		return MethodSHA256, nil
	default:
		return "", fmt.Errorf("unsupported verification method: %s", s)
	}
}

// Target is one table to verify: rows with CursorColumn <= UpTo are
// expected to be identical on both sides.
type Target struct {
	Table        string
	CursorColumn string
	UpTo         int64
}

// VerifyResult holds verification results for a single table.
type VerifyResult struct {
	Table        string
	Method       VerificationMethod
	UpTo         int64
	SourceCount  int64
	DestCount    int64
	SourceHash   string
	DestHash     string
	Match        bool
	ErrorMessage string
}

// VerifyStats contains overall verification statistics.
type VerifyStats struct {
	TablesVerified int
	TablesPassed   int
	TablesFailed   int
	TotalRows      int64
	Method         VerificationMethod
	Duration       time.Duration
	Results        []VerifyResult
}

// Verifier handles data integrity verification between source and destination databases.
type Verifier struct {
	source      *database.DB
	destination *database.DB
	method      VerificationMethod
	chunkSize   int
	logger      *logger.Logger
}

// NewVerifier creates a new verifier for data integrity checks.
func NewVerifier(source, destination *database.DB, method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	if source == nil {
		return nil, fmt.Errorf("source database is nil")
	}
	if destination == nil {
		return nil, fmt.Errorf("destination database is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if method == "" {
		method = MethodCount
	}

	return &Verifier{
		source:      source,
		destination: destination,
		method:      method,
		chunkSize:   1000,
		logger:      log,
	}, nil
}

// Verify checks every target and returns per-table results. A table that
// cannot be read is recorded as failed and verification moves on. The
// returned error is set when any table failed or ctx was cancelled.
func (v *Verifier) Verify(ctx context.Context, targets []Target) (*VerifyStats, error) {
	started := time.Now()
	stats := &VerifyStats{Method: v.method}

	v.logger.Infof("Starting verification (method=%s) for %d tables", v.method, len(targets))

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("verification interrupted: %w", err)
		}

		result, err := v.VerifyTable(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("verification interrupted: %w", ctx.Err())
			}
			result = &VerifyResult{
				Table:        target.Table,
				Method:       v.method,
				UpTo:         target.UpTo,
				ErrorMessage: err.Error(),
			}
		}

		stats.TablesVerified++
		stats.TotalRows += result.SourceCount
		stats.Results = append(stats.Results, *result)

		if result.Match {
			stats.TablesPassed++
			v.logger.Debugf("Verification PASSED for table %q (%d rows)", target.Table, result.SourceCount)
		} else {
			stats.TablesFailed++
			v.logger.Errorf("Verification FAILED for table %q: %s", target.Table, result.ErrorMessage)
		}
	}
	stats.Duration = time.Since(started)

	v.logger.Infof("Verification complete: %d tables verified, %d passed, %d failed, %d total rows",
		stats.TablesVerified, stats.TablesPassed, stats.TablesFailed, stats.TotalRows)

	if stats.TablesFailed > 0 {
		return stats, fmt.Errorf("verification failed: %d tables had mismatches", stats.TablesFailed)
	}
	return stats, nil
}

// VerifyTable verifies a single target with the configured method.
func (v *Verifier) VerifyTable(ctx context.Context, target Target) (*VerifyResult, error) {
	switch v.method {
	case MethodCount:
		return v.verifyByCount(ctx, target)
	case MethodSHA256:
		return v.verifyBySHA256(ctx, target)
	default:
		return nil, fmt.Errorf("unsupported verification method: %s", v.method)
	}
}

func (v *Verifier) verifyByCount(ctx context.Context, target Target) (*VerifyResult, error) {
	conds := []database.Cond{database.Lte(target.CursorColumn, target.UpTo)}

	sourceCount, err := v.source.Count(ctx, target.Table, conds)
	if err != nil {
		return nil, fmt.Errorf("failed to count source: %w", err)
	}
	destCount, err := v.destination.Count(ctx, target.Table, conds)
	if err != nil {
		return nil, fmt.Errorf("failed to count destination: %w", err)
	}

	result := &VerifyResult{
		Table:       target.Table,
		Method:      MethodCount,
		UpTo:        target.UpTo,
		SourceCount: sourceCount,
		DestCount:   destCount,
		Match:       sourceCount == destCount,
	}
	if !result.Match {
		result.ErrorMessage = fmt.Sprintf("count mismatch: source=%d, dest=%d", sourceCount, destCount)
	}
	return result, nil
}

func (v *Verifier) verifyBySHA256(ctx context.Context, target Target) (*VerifyResult, error) {
	sourceHash, sourceCount, err := v.computeTableHash(ctx, v.source, target)
	if err != nil {
		return nil, fmt.Errorf("failed to compute source hash: %w", err)
	}
	destHash, destCount, err := v.computeTableHash(ctx, v.destination, target)
	if err != nil {
		return nil, fmt.Errorf("failed to compute destination hash: %w", err)
	}

	result := &VerifyResult{
		Table:       target.Table,
		Method:      MethodSHA256,
		UpTo:        target.UpTo,
		SourceCount: sourceCount,
		DestCount:   destCount,
		SourceHash:  sourceHash,
		DestHash:    destHash,
		Match:       sourceHash == destHash && sourceCount == destCount,
	}
	if !result.Match {
		if sourceCount != destCount {
			result.ErrorMessage = fmt.Sprintf("count mismatch: source=%d, dest=%d", sourceCount, destCount)
		} else {
			result.ErrorMessage = fmt.Sprintf("hash mismatch: source=%s, dest=%s", sourceHash[:16], destHash[:16])
		}
	}
	return result, nil
}

// computeTableHash hashes rows with cursor <= UpTo in cursor order, reading
// chunkSize rows at a time.
func (v *Verifier) computeTableHash(ctx context.Context, db *database.DB, target Target) (string, int64, error) {
	hasher := sha256.New()
	var totalRows int64
	var after int64
	first := true

	for {
		conds := []database.Cond{database.Lte(target.CursorColumn, target.UpTo)}
		if !first {
			conds = append(conds, database.Gt(target.CursorColumn, after))
		}
		batch, err := db.SelectWhere(ctx, target.Table, conds,
			[]database.Order{database.Asc(target.CursorColumn)}, v.chunkSize)
		if err != nil {
			return "", 0, fmt.Errorf("query failed: %w", err)
		}
		if batch.Len() == 0 {
			break
		}

		hashBatch(hasher, batch)
		totalRows += int64(batch.Len())

		if batch.Len() < v.chunkSize {
			break
		}
		after, err = batch.MaxInt64(target.CursorColumn)
		if err != nil {
			return "", 0, err
		}
		first = false
	}

	return hex.EncodeToString(hasher.Sum(nil)), totalRows, nil
}

func hashBatch(h hash.Hash, batch *types.RowBatch) {
	for _, row := range batch.Rows {
		h.Write([]byte(serializeRow(batch.Columns, row)))
		h.Write([]byte("\n"))
	}
}

// serializeRow converts a row to a deterministic string representation for hashing.
// Format: col1=val1\x00col2=val2...
func serializeRow(columns []string, values []interface{}) string {
	parts := make([]string, len(columns))

	for i, col := range columns {
		var valStr string
		switch val := values[i].(type) {
		case nil:
			valStr = "NULL"
		case []byte:
			valStr = string(val)
		case int64:
			valStr = fmt.Sprintf("%d", val)
		case float64:
			valStr = fmt.Sprintf("%f", val)
		case bool:
			valStr = fmt.Sprintf("%t", val)
		case string:
			valStr = val
		case time.Time:
			valStr = val.UTC().Format(time.RFC3339Nano)
		default:
			valStr = fmt.Sprintf("%v", val)
		}
		parts[i] = col + "=" + valStr
	}

	return strings.Join(parts, "\x00")
}

// SetChunkSize sets the number of rows read per query when hashing.
func (v *Verifier) SetChunkSize(size int) {
	if size > 0 {
		v.chunkSize = size
	}
}

// GetChunkSize returns the current chunk size.
func (v *Verifier) GetChunkSize() int {
	return v.chunkSize
}

// GetMethod returns the configured verification method.
func (v *Verifier) GetMethod() VerificationMethod {
	return v.method
}
