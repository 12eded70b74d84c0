// Package store implements the persistent DAO (SPEC_FULL.md §4.2): a SQLite-
// backed archive of datasets, users, chats and messages, reachable through
// one long-lived database/sql handle per database file.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/archivekeep/chathist/internal/apperr"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store is the persistent DAO. It owns one database/sql handle (a
// connection pool) for its file and adds no locking of its own; concurrent
// writers are ordered by SQLite's locking and the busy timeout.
type Store struct {
	db     *sql.DB
	dbPath string
	// attachmentsRoot is the dataset-root file store directory IsLoaded
	// resolves relative paths against; empty until SetAttachmentsRoot is
	// called.
	attachmentsRoot string
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// isSQLiteError reports whether err is a sqlite3.Error whose message contains
// substr, unwrapping through both value and pointer driver error forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// isUniqueConstraintErr reports whether err is a SQLite UNIQUE/PK violation.
func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// Open opens or creates the SQLite database at dbPath and ensures the schema
// exists.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "create database directory %q", dir)
	}

	dsn := dbPath + defaultSQLiteParams
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "open database %q", dbPath)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.IO, err, "ping database %q", dbPath)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the path this Store was opened with, as given to Open. Stores
// loaded through the Registry are opened with the absolute path that keys
// them there.
func (s *Store) Path() string {
	return s.dbPath
}

// DB returns the underlying connection for operations not otherwise exposed.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "read embedded schema")
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return apperr.Wrap(apperr.IO, err, "execute schema")
	}
	return nil
}

// withTx executes fn inside a transaction, rolling back on error or panic.
func (s *Store) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// queryInChunks executes a parameterized IN-query in chunks to stay within
// SQLite's parameter limit. queryTemplate must contain a single %s
// placeholder for the comma-separated "?" list; prefixArgs are prepended to
// every chunk's args.
func queryInChunks[T any](db *sql.DB, ids []T, prefixArgs []interface{}, queryTemplate string, fn func(*sql.Rows) error) error {
	const chunkSize = 500
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(prefixArgs)+len(chunk))
		args = append(args, prefixArgs...)
		for j, id := range chunk {
			placeholders[j] = "?"
			args = append(args, id)
		}

		query := fmt.Sprintf(queryTemplate, strings.Join(placeholders, ","))
		rows, err := db.Query(query, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			if err := fn(rows); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// insertInChunks executes a multi-value INSERT in chunks to stay within
// SQLite's 999-parameter limit. valuesPerRow is the parameter count of one
// VALUES tuple; valueBuilder returns the placeholder strings and args for the
// half-open row range [start,end).
func insertInChunks(tx *sql.Tx, totalRows int, valuesPerRow int, queryPrefix string, valueBuilder func(start, end int) ([]string, []interface{})) error {
	const maxParams = 900
	chunkSize := maxParams / valuesPerRow
	if chunkSize < 1 {
		chunkSize = 1
	}

	for i := 0; i < totalRows; i += chunkSize {
		end := i + chunkSize
		if end > totalRows {
			end = totalRows
		}
		values, args := valueBuilder(i, end)
		query := queryPrefix + strings.Join(values, ",")
		if _, err := tx.Exec(query, args...); err != nil {
			return err
		}
	}
	return nil
}
