package sources

import (
	"context"
	"fmt"
	"os"

	"sftocsv/internal/dbclient"
	"sftocsv/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads rows from an external SQL database (sqlite, mysql, postgres) with
// a paging cursor.

const defaultFetchSize = 500

// connect opens a connector; tests swap it out.
var connect = dbclient.NewConnector

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: append(connectionFields([]string{dbclient.DriverSQLite, dbclient.DriverMySQL, dbclient.DriverPostgres}),
			etl.ConfigField{Key: "query", Label: "Query", Type: "text", Required: true, Help: "Read-only SQL query"},
			etl.ConfigField{Key: "fetchSize", Label: "Fetch Size", Type: "string", Default: "500"},
		),
	}
}

func connectionFields(drivers []string) []etl.ConfigField {
	return []etl.ConfigField{
		{Key: "driver", Label: "Driver", Type: "select", Required: true, Options: drivers},
		{Key: "host", Label: "Host", Type: "string", Required: true, Help: "Hostname, file path for sqlite, or a full mongodb:// URI"},
		{Key: "port", Label: "Port", Type: "string"},
		{Key: "username", Label: "Username", Type: "string"},
		{Key: "passwordEnv", Label: "Password Env", Type: "string", Help: "Environment variable holding the password"},
		{Key: "database", Label: "Database", Type: "string"},
		{Key: "sslMode", Label: "SSL Mode", Type: "string"},
	}
}

// resolveConnection builds the connection, reading the password from the
// environment variable named by passwordEnv when set.
func resolveConnection(cfg etl.SourceConfig) (*dbclient.Connection, error) {
	conn, err := dbclient.ConnectionFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if env := cfg.String("passwordEnv"); env != "" {
		pw, ok := os.LookupEnv(env)
		if !ok {
			return nil, fmt.Errorf("password variable %s is not set", env)
		}
		conn.Password = pw
	}
	return conn, nil
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		conn, err := resolveConnection(cfg)
		if err != nil {
			errCh <- err
			return
		}
		if conn.Driver == dbclient.DriverMongoDB {
			errCh <- fmt.Errorf("use the mongo source for mongodb connections")
			return
		}
		if err := streamQuery(ctx, conn, cfg.String("query"), cfg.Int("fetchSize", defaultFetchSize), out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// streamQuery pages through query and emits every row.
func streamQuery(ctx context.Context, conn *dbclient.Connection, query string, fetchSize int, out chan<- etl.Record) error {
	c, err := connect(conn)
	if err != nil {
		return err
	}
	defer c.Close()

	page, err := c.Execute(ctx, query, fetchSize)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if !etl.Emit(ctx, out, "", page.Records...) {
		return ctx.Err()
	}
	for page.HasMore {
		page, err = c.FetchMore(ctx, fetchSize)
		if err != nil {
			return fmt.Errorf("fetch more: %w", err)
		}
		if !etl.Emit(ctx, out, "", page.Records...) {
			return ctx.Err()
		}
	}
	return nil
}
