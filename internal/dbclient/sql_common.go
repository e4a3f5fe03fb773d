package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"sftocsv/internal/record"
)

const defaultFetchSize = 500

// readPrefixes are the statement keywords a source query may start with.
var readPrefixes = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA"}

// columnListings selects (table, column, type) for every table of the
// connected schema, ordered by table then column position.
var columnListings = map[string]string{
	DriverSQLite: `SELECT m.name, p.name, p.type
		FROM sqlite_master m JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`,
	DriverMySQL: `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		ORDER BY TABLE_NAME, ORDINAL_POSITION`,
	DriverPostgres: `SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position`,
}

// sqlConnector reads from MySQL, Postgres and SQLite through database/sql.
// At most one cursor is open at a time.
type sqlConnector struct {
	driverName string
	db         *sql.DB

	mu     sync.Mutex
	cursor *sqlCursor
}

// sqlCursor is an open read query. Its context is cancelled on close.
type sqlCursor struct {
	rows    *sql.Rows
	cancel  context.CancelFunc
	columns []string
	fetched int
}

func newSQLConnector(driverName, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return &sqlConnector{driverName: driverName, db: db}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func isReadQuery(query string) bool {
	verb := strings.ToUpper(firstWord(query))
	for _, p := range readPrefixes {
		if strings.HasPrefix(verb, p) {
			return true
		}
	}
	return false
}

func firstWord(q string) string {
	if f := strings.Fields(q); len(f) > 0 {
		return f[0]
	}
	return ""
}

func (c *sqlConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	if !isReadQuery(query) {
		return nil, fmt.Errorf("only read queries can be exported: %q", firstWord(query))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCursorLocked()

	qctx, cancel := context.WithCancel(ctx)
	rows, err := c.db.QueryContext(qctx, query)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		cancel()
		return nil, fmt.Errorf("columns: %w", err)
	}
	c.cursor = &sqlCursor{rows: rows, cancel: cancel, columns: cols}
	return c.nextPageLocked(fetchSize)
}

func (c *sqlConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cursor == nil {
		return nil, fmt.Errorf("no active cursor, execute a query first")
	}
	if err := ctx.Err(); err != nil {
		c.closeCursorLocked()
		return nil, err
	}
	return c.nextPageLocked(fetchSize)
}

// nextPageLocked reads up to fetchSize rows. A short page closes the
// cursor. Callers hold c.mu.
func (c *sqlConnector) nextPageLocked(fetchSize int) (*QueryPage, error) {
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	cur := c.cursor
	recs := make(record.Collection, 0, fetchSize)
	for len(recs) < fetchSize && cur.rows.Next() {
		rec, err := cur.scan()
		if err != nil {
			c.closeCursorLocked()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := cur.rows.Err(); err != nil {
		c.closeCursorLocked()
		return nil, fmt.Errorf("iterate: %w", err)
	}

	cur.fetched += len(recs)
	page := &QueryPage{
		Columns:      cur.columns,
		Records:      recs,
		TotalFetched: cur.fetched,
		HasMore:      len(recs) == fetchSize,
	}
	if !page.HasMore {
		c.closeCursorLocked()
	}
	return page, nil
}

// scan turns the current row into a record keyed in column order.
func (cur *sqlCursor) scan() (*record.Record, error) {
	values := make([]any, len(cur.columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := cur.rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	rec := record.New()
	for i, v := range values {
		rec.Set(cur.columns[i], record.ValueOf(driverValue(v)))
	}
	return rec, nil
}

// driverValue maps driver types the record model does not know: bytes
// become text and times RFC 3339 strings.
func driverValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	return v
}

// Introspect lists every table of the connected schema with its columns
// in declaration order.
func (c *sqlConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	listing, ok := columnListings[c.driverName]
	if !ok {
		return nil, fmt.Errorf("introspection not supported for %s", c.driverName)
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, listing)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	schema := &SchemaInfo{}
	for rows.Next() {
		var table string
		var col ColumnInfo
		if err := rows.Scan(&table, &col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("list columns: %w", err)
		}
		if n := len(schema.Tables); n == 0 || schema.Tables[n-1].Name != table {
			schema.Tables = append(schema.Tables, TableInfo{Name: table})
		}
		last := &schema.Tables[len(schema.Tables)-1]
		last.Columns = append(last.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return schema, nil
}

func (c *sqlConnector) Close() error {
	c.mu.Lock()
	c.closeCursorLocked()
	c.mu.Unlock()
	return c.db.Close()
}

func (c *sqlConnector) closeCursorLocked() {
	if c.cursor == nil {
		return
	}
	c.cursor.rows.Close()
	c.cursor.cancel()
	c.cursor = nil
}
