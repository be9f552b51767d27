// Package sqlutil provides SQL text helpers shared by the database dialects.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteBacktick quotes a MySQL identifier with backticks, doubling any
// embedded backtick.
// Example: "my`table" -> "`my``table`"
func QuoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteANSI quotes an identifier with double quotes (PostgreSQL, SQLite),
// doubling any embedded double quote.
func QuoteANSI(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// createTablePrefix matches the leading CREATE TABLE keyword pair, with or
// without an existing IF NOT EXISTS guard. TEMPORARY tables are not matched.
var createTablePrefix = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?`)

// GuardCreateTable rewrites a CREATE TABLE statement so that executing it
// against a database that already has the table is a no-op.
// Statements that are not CREATE TABLE are returned unchanged and ok is false.
func GuardCreateTable(ddl string) (guarded string, ok bool) {
	loc := createTablePrefix.FindStringIndex(ddl)
	if loc == nil {
		return ddl, false
	}
	return "CREATE TABLE IF NOT EXISTS " + ddl[loc[1]:], true
}

// Placeholders returns n comma-separated placeholders produced by mark,
// starting at position start (1-based, used by numbered placeholder styles).
func Placeholders(n, start int, mark func(pos int) string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = mark(start + i)
	}
	return strings.Join(parts, ", ")
}
