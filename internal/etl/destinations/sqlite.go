package destinations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"sftocsv/internal/etl"
	"sftocsv/internal/record"
)

// ── SQLite Destination ─────────────────────────────────────
// Writes a relation into a table of a local SQLite file. The table follows
// the relation's schema: replace recreates it, append adds missing columns.

type sqliteDestination struct{}

func init() { etl.RegisterDestination(&sqliteDestination{}) }

func (d *sqliteDestination) Type() string { return "sqlite" }

var unsafeTableChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// TableName derives the target table: the configured table (or the
// relation name) plus _<Type> for typed relations.
func TableName(cfg etl.DestinationConfig, rel etl.Relation) string {
	table := cfg.String("table")
	if table == "" {
		table = rel.Name
	}
	if rel.Type != "" && cfg.String("table") != "" {
		table += "_" + rel.Type
	}
	return strings.Trim(unsafeTableChars.ReplaceAllString(table, "_"), "_")
}

func (d *sqliteDestination) Write(ctx context.Context, cfg etl.DestinationConfig, rel etl.Relation, mode etl.SyncMode) (int, string, error) {
	path := cfg.String("path")
	if path == "" {
		return 0, "", fmt.Errorf("sqlite destination: path is required")
	}
	table := TableName(cfg, rel)
	if table == "" {
		return 0, "", fmt.Errorf("sqlite destination: empty table name")
	}
	target := path + "#" + table

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, target, fmt.Errorf("sqlite destination: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return 0, target, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	schema := rel.Schema
	if schema == nil {
		schema = etl.InferSchema(rel.Records)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, target, err
	}
	defer tx.Rollback()

	if err := prepareTable(ctx, tx, table, schema, mode); err != nil {
		return 0, target, fmt.Errorf("prepare table %s: %w", table, err)
	}
	if len(rel.Records) == 0 || len(schema.Fields) == 0 {
		return 0, target, tx.Commit()
	}

	names := schema.FieldNames()
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	for i, n := range names {
		cols[i] = quoteIdent(n)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, target, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	args := make([]any, len(names))
	for i, rec := range rel.Records {
		for j, n := range names {
			v, _ := rec.Get(n)
			args[j] = sqlValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, target, fmt.Errorf("insert row %d: %w", i, err)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, target, fmt.Errorf("commit: %w", err)
	}
	return written, target, nil
}

func prepareTable(ctx context.Context, tx *sql.Tx, table string, schema *etl.Schema, mode etl.SyncMode) error {
	if mode == etl.SyncReplace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
			return err
		}
	}

	defs := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		defs = append(defs, quoteIdent(f.Name)+" "+columnType(f.Type))
	}
	if len(defs) == 0 {
		defs = append(defs, `"_empty" TEXT`)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return err
	}
	if mode == etl.SyncReplace {
		return nil
	}

	existing, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	for _, f := range schema.Fields {
		if existing[f.Name] {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			quoteIdent(table), quoteIdent(f.Name), columnType(f.Type))); err != nil {
			return err
		}
	}
	return nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func columnType(t string) string {
	switch t {
	case "number":
		return "REAL"
	case "boolean":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func sqlValue(v record.Value) any {
	switch val := v.(type) {
	case nil, record.Null:
		return nil
	case record.String:
		return string(val)
	case record.Number:
		return float64(val)
	case record.Bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return record.Format(val)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
