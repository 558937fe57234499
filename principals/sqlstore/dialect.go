package sqlstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// target is a parsed DATABASE_URL.
type target struct {
	dialect    dialect
	driverName string
	dsn        string
	migrateURL string
}

// parseDatabaseURL accepts postgres://, postgresql:// and sqlite://<path> URLs.
func parseDatabaseURL(databaseURL string) (target, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		_, rest, _ := strings.Cut(databaseURL, "://")
		return target{
			dialect:    dialectPostgres,
			driverName: "pgx",
			dsn:        databaseURL,
			migrateURL: "pgx5://" + rest,
		}, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" || strings.HasPrefix(path, ":memory:") {
			return target{}, fmt.Errorf("sqlite database needs a file path, got %q", databaseURL)
		}
		path, _, _ = strings.Cut(path, "?")
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return target{}, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		return target{
			dialect:    dialectSQLite,
			driverName: "sqlite",
			dsn:        dsn,
			migrateURL: "sqlite://" + dsn,
		}, nil
	default:
		return target{}, fmt.Errorf("unsupported DATABASE_URL scheme in %q", databaseURL)
	}
}

// rebind rewrites ? placeholders into the dialect's form.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
