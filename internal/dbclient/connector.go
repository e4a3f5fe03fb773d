package dbclient

import (
	"context"
	"fmt"

	"sftocsv/internal/record"
)

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string          `json:"columns"`
	Records      record.Collection `json:"records"`
	TotalFetched int               `json:"totalFetched"` // total rows fetched so far
	HasMore      bool              `json:"hasMore"`      // cursor has more rows
}

// SchemaInfo lists the tables (or collections) of a database.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table/collection.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector reads from an external database. Only read queries are
// accepted; extraction never writes to a source.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a read query and returns the first batch of rows.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Introspect returns the database schema.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// NewConnector creates a Connector for the given connection.
func NewConnector(conn *Connection) (Connector, error) {
	switch conn.Driver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
		driver, dsn, err := DSN(conn)
		if err != nil {
			return nil, err
		}
		return newSQLConnector(driver, dsn)
	case DriverMongoDB:
		return newMongoConnector(conn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}

// ReadAll executes query and follows the cursor to the end.
func ReadAll(ctx context.Context, c Connector, query string, fetchSize int) (record.Collection, error) {
	page, err := c.Execute(ctx, query, fetchSize)
	if err != nil {
		return nil, err
	}
	out := append(record.Collection{}, page.Records...)
	for page.HasMore {
		if page, err = c.FetchMore(ctx, fetchSize); err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
	}
	return out, nil
}
