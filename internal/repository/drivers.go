package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	defaultSQLitePath = "./kestrel.db"
	memorySQLitePath  = ":memory:"
	pingTimeout       = 5 * time.Second
)

// dialect holds what differs between the supported databases.
type dialect struct {
	name string
	dsn  func(cfg domain.RepositoryConfig) (string, error)
	// singleConn forces one pooled connection, needed for in-memory SQLite.
	singleConn func(cfg domain.RepositoryConfig) bool
	// numbered placeholders ($1, $2) instead of ?.
	numbered bool
	// duplicate reports a primary key or unique violation.
	duplicate func(err error) bool
}

var dialects = map[string]dialect{
	"sqlite": {
		name:       "sqlite",
		dsn:        sqliteDSN,
		singleConn: func(cfg domain.RepositoryConfig) bool { return cfg.SQLitePath == memorySQLitePath },
		duplicate: func(err error) bool {
			var se *sqlite.Error
			if !errors.As(err, &se) {
				return false
			}
			return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
		},
	},
	"postgres": {
		name:     "postgres",
		dsn:      func(cfg domain.RepositoryConfig) (string, error) { return postgresDSN(cfg), nil },
		numbered: true,
		duplicate: func(err error) bool {
			var pe *pq.Error
			return errors.As(err, &pe) && pe.Code == "23505"
		},
	},
}

// bind rewrites ? placeholders for dialects that number them.
func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// open connects using the dialect registered for cfg.Driver.
func open(cfg domain.RepositoryConfig) (*sql.DB, dialect, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, dialect{}, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, d, err
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, d, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if d.singleConn != nil && d.singleConn(cfg) {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, d, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	return db, d, nil
}

// sqliteDSN builds a modernc.org/sqlite DSN with WAL and a busy timeout.
// The database directory is created when missing.
func sqliteDSN(cfg domain.RepositoryConfig) (string, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = defaultSQLitePath
	}
	if path == memorySQLitePath {
		return "file::memory:?_pragma=foreign_keys(ON)", nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path), nil
}

// postgresDSN builds a lib/pq key/value connection string.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "kestrel"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	pairs := []string{
		"host=" + quoteDSNValue(host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + quoteDSNValue(dbname),
		"sslmode=" + quoteDSNValue(sslmode),
	}
	if cfg.PostgresUser != "" {
		pairs = append(pairs, "user="+quoteDSNValue(cfg.PostgresUser))
	}
	if cfg.PostgresPassword != "" {
		pairs = append(pairs, "password="+quoteDSNValue(cfg.PostgresPassword))
	}
	return strings.Join(pairs, " ")
}

// quoteDSNValue single-quotes values containing spaces, quotes or
// backslashes, escaping the latter two.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
