package dbclient

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DSN returns the database/sql driver name and data source name for conn.
// Credentials are escaped, and Options become driver parameters.
func DSN(conn *Connection) (string, string, error) {
	switch conn.Driver {
	case DriverSQLite:
		return "sqlite", sqliteDSN(conn), nil
	case DriverMySQL:
		return "mysql", mysqlDSN(conn), nil
	case DriverPostgres:
		return "postgres", postgresDSN(conn), nil
	default:
		return "", "", fmt.Errorf("no SQL driver for %q", conn.Driver)
	}
}

// sqliteDSN opens the file read-only; sources never write.
func sqliteDSN(conn *Connection) string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", "busy_timeout(5000)")
	for k, v := range conn.Options {
		q.Set(k, v)
	}
	return "file:" + conn.Host + "?" + q.Encode()
}

func mysqlDSN(conn *Connection) string {
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(port))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range conn.Options {
		cfg.Params[k] = v
	}
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}

func postgresDSN(conn *Connection) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	for k, v := range conn.Options {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(conn.Host, strconv.Itoa(port)),
		Path:     "/" + conn.Database,
		RawQuery: q.Encode(),
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, conn.Password)
	}
	return u.String()
}
