package dbclient

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongoDB  = "mongodb"
)

// Connection describes how to reach an external database.
type Connection struct {
	Driver   string `yaml:"driver" json:"driver"`
	Host     string `yaml:"host" json:"host"` // file path for sqlite, or a full mongodb:// URI
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode" json:"sslMode"`
	// Options are extra URI parameters (mongo authSource, replicaSet, ...).
	Options map[string]string `yaml:"options" json:"options,omitempty"`
}

// ConnectionFromConfig reads a Connection out of a source config map.
func ConnectionFromConfig(cfg map[string]any) (*Connection, error) {
	str := func(k string) string {
		s, _ := cfg[k].(string)
		return s
	}
	conn := &Connection{
		Driver:   strings.ToLower(str("driver")),
		Host:     str("host"),
		Username: str("username"),
		Password: str("password"),
		Database: str("database"),
		SSLMode:  str("sslMode"),
	}
	if conn.Host == "" {
		conn.Host = str("path")
	}
	switch p := cfg["port"].(type) {
	case int:
		conn.Port = p
	case int64:
		conn.Port = int(p)
	case float64:
		conn.Port = int(p)
	case string:
		if p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid port %q", p)
			}
			conn.Port = n
		}
	}
	if opts, ok := cfg["options"].(map[string]any); ok {
		conn.Options = make(map[string]string, len(opts))
		for k, v := range opts {
			conn.Options[k] = fmt.Sprint(v)
		}
	}
	if conn.Driver == "" {
		return nil, fmt.Errorf("driver is required")
	}
	if conn.Host == "" {
		return nil, fmt.Errorf("host (or path) is required")
	}
	return conn, nil
}
