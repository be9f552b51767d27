// Package report renders run summaries, plans, checkpoint listings and
// verification results for the console.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gookit/color"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/tablesync/internal/replicator"
	"github.com/dbsmedya/tablesync/internal/verifier"
)

const timeLayout = "2006-01-02 15:04:05"

// Printer writes human readable reports to w.
type Printer struct {
	w       io.Writer
	colored bool
}

// NewPrinter creates a printer. With colored, outcomes are highlighted
// using ANSI colors.
func NewPrinter(w io.Writer, colored bool) *Printer {
	return &Printer{w: w, colored: colored}
}

// header prints a formatted header
func (p *Printer) header(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := len(title) + 4
	fmt.Fprintln(p.w, strings.Repeat("=", width))
	if p.colored {
		fmt.Fprintf(p.w, "  %s\n", color.Bold.Sprint(title))
	} else {
		fmt.Fprintf(p.w, "  %s\n", title)
	}
	fmt.Fprintln(p.w, strings.Repeat("=", width))
}

func outcomeColor(o replicator.Outcome) color.Color {
	switch o {
	case replicator.OutcomeFailed:
		return color.Red
	case replicator.OutcomeSkippedEngine, replicator.OutcomeSkippedNoPK:
		return color.Yellow
	case replicator.OutcomeUpToDate:
		return color.Gray
	default:
		return color.Green
	}
}

func actionColor(a replicator.Action) color.Color {
	switch a {
	case replicator.ActionBlocked:
		return color.Red
	case replicator.ActionSkipNoEngine, replicator.ActionSkipNoPrimaryKey:
		return color.Yellow
	case replicator.ActionUpToDate:
		return color.Gray
	default:
		return color.Cyan
	}
}

// RunSummary prints the per-table outcome of a sync run.
func (p *Printer) RunSummary(res *replicator.RunResult) {
	p.header("Sync Run %s", res.RunID)

	t := newTable("TABLE", "OUTCOME", "CURSOR", "FROM", "TO", "ROWS", "BATCHES", "TIME").alignRight(3, 4, 5, 6, 7)
	var errs []replicator.TableResult
	for _, tr := range res.Tables {
		t.add(
			plain(tr.Table),
			styled(string(tr.Outcome), outcomeColor(tr.Outcome)),
			plain(tr.CursorColumn),
			plain(fmt.Sprintf("%d", tr.StartCursor)),
			plain(fmt.Sprintf("%d", tr.EndCursor)),
			plain(fmt.Sprintf("%d", tr.RowsApplied)),
			plain(fmt.Sprintf("%d", tr.Batches)),
			plain(tr.Duration.Round(time.Millisecond).String()),
		)
		if tr.Outcome == replicator.OutcomeFailed {
			errs = append(errs, tr)
		}
	}
	t.render(p.w, p.colored)

	if len(errs) > 0 {
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, "Errors:")
		for _, tr := range errs {
			fmt.Fprintf(p.w, "  • %s: %v\n", tr.Table, tr.Err)
		}
	}

	counts := res.Counts()
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "Tables: %d  Bootstrapped: %d  Caught up: %d  Up to date: %d  Skipped: %d  Failed: %d\n",
		len(res.Tables),
		counts[replicator.OutcomeBootstrapped],
		counts[replicator.OutcomeCaughtUp],
		counts[replicator.OutcomeUpToDate],
		counts[replicator.OutcomeSkippedEngine]+counts[replicator.OutcomeSkippedNoPK],
		counts[replicator.OutcomeFailed],
	)
	fmt.Fprintf(p.w, "Rows applied: %d  Duration: %s\n", res.RowsApplied(), res.Duration.Round(time.Millisecond))
}

// Plan prints a dry-run plan.
func (p *Printer) Plan(plan *replicator.Plan) {
	p.header("Sync Plan (dry run)")
	fmt.Fprintf(p.w, "  Checkpoint table: %s", plan.CheckpointTable)
	if !plan.CheckpointTableExists {
		fmt.Fprint(p.w, " (will be created)")
	}
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "  Batch size:       %d\n\n", plan.BatchSize)

	t := newTable("TABLE", "ACTION", "CURSOR", "CHECKPOINT", "SOURCE MAX", "PENDING", "BATCHES", "NOTE").alignRight(3, 4, 5, 6)
	for _, e := range plan.Entries {
		t.add(
			plain(e.Table),
			styled(string(e.Action), actionColor(e.Action)),
			plain(e.CursorColumn),
			plain(fmt.Sprintf("%d", e.Cursor)),
			plain(fmt.Sprintf("%d", e.SourceMax)),
			plain(fmt.Sprintf("%d", e.PendingRows)),
			plain(fmt.Sprintf("%d", e.PendingBatches)),
			plain(e.Note),
		)
	}
	t.render(p.w, p.colored)

	fmt.Fprintf(p.w, "\nTotal: %d table(s), %d pending row(s)\n", len(plan.Entries), plan.PendingRows())
}

// Checkpoints prints the stored checkpoints.
func (p *Printer) Checkpoints(table string, cps []replicator.Checkpoint) {
	if len(cps) == 0 {
		fmt.Fprintf(p.w, "No checkpoints in %s\n", table)
		return
	}

	t := newTable("TABLE", "CURSOR", "LAST VALUE", "ROWS", "ADDED", "LAST SYNC").alignRight(2, 3)
	for _, cp := range cps {
		t.add(
			plain(cp.TableName),
			plain(cp.CursorColumn),
			plain(fmt.Sprintf("%d", cp.LastCursorValue)),
			plain(fmt.Sprintf("%d", cp.TotalRowsSynced)),
			plain(formatTime(cp.AddedAt)),
			plain(formatTime(cp.LastSyncedAt)),
		)
	}
	t.render(p.w, p.colored)
	fmt.Fprintf(p.w, "\nTotal: %d checkpoint(s) in %s\n", len(cps), table)
}

// Verification prints verification results.
func (p *Printer) Verification(stats *verifier.VerifyStats) {
	p.header("Verification (%s)", stats.Method)

	t := newTable("TABLE", "RESULT", "UP TO", "SOURCE", "TARGET", "DETAIL").alignRight(2, 3, 4)
	for _, r := range stats.Results {
		result := styled("ok", color.Green)
		if !r.Match {
			result = styled("mismatch", color.Red)
		}
		t.add(
			plain(r.Table),
			result,
			plain(fmt.Sprintf("%d", r.UpTo)),
			plain(fmt.Sprintf("%d", r.SourceCount)),
			plain(fmt.Sprintf("%d", r.DestCount)),
			plain(r.ErrorMessage),
		)
	}
	t.render(p.w, p.colored)

	fmt.Fprintf(p.w, "\nVerified: %d  Passed: %d  Failed: %d  Rows: %d\n",
		stats.TablesVerified, stats.TablesPassed, stats.TablesFailed, stats.TotalRows)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

type checkpointDoc struct {
	Table           string `yaml:"table"`
	CursorColumn    string `yaml:"cursor_column"`
	LastCursorValue int64  `yaml:"last_cursor_value"`
	TotalRowsSynced int64  `yaml:"total_rows_synced"`
	AddedAt         string `yaml:"added_at"`
	LastSyncedAt    string `yaml:"last_synced_at"`
}

type statusDoc struct {
	CheckpointTable string          `yaml:"checkpoint_table"`
	Checkpoints     []checkpointDoc `yaml:"checkpoints"`
}

// WriteCheckpointsYAML writes the checkpoints as a YAML document.
func WriteCheckpointsYAML(w io.Writer, table string, cps []replicator.Checkpoint) error {
	doc := statusDoc{CheckpointTable: table, Checkpoints: make([]checkpointDoc, 0, len(cps))}
	for _, cp := range cps {
		doc.Checkpoints = append(doc.Checkpoints, checkpointDoc{
			Table:           cp.TableName,
			CursorColumn:    cp.CursorColumn,
			LastCursorValue: cp.LastCursorValue,
			TotalRowsSynced: cp.TotalRowsSynced,
			AddedAt:         formatRFC3339(cp.AddedAt),
			LastSyncedAt:    formatRFC3339(cp.LastSyncedAt),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return enc.Close()
}

func formatRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
