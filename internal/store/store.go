package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"sync"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade a mirror from user_version i to i+1. Fresh databases
// run them too; each must be idempotent.
var migrations = []func(*sql.Tx) error{
	// 1: index parent ids for resume lookups on large mirrors.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_events_ao_id ON events(ao_id)`)
		return err
	},
}

var currentSchemaVersion = len(migrations)

// ErrNotMirror is returned when a read-only open finds no mirror schema.
var ErrNotMirror = errors.New("not an event mirror database")

// Store mirrors event log lines into SQLite.
type Store struct {
	db       *sql.DB
	readOnly bool

	// mu guards run, the run_id of the run currently being written.
	mu  sync.Mutex
	run string
}

// Open creates or opens the mirror at path for writing. The schema is
// created and migrated as needed, so opening twice is harmless.
func Open(path string) (*Store, error) {
	db, err := connect(path, false)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to execute %q", pragma)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to prepare mirror %s", path)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing mirror for reading. It never creates a
// file and fails with ErrNotMirror when the schema is missing or older
// than this build expects.
func OpenReadOnly(path string) (*Store, error) {
	db, err := connect(path, true)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	version, err := userVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if version < currentSchemaVersion {
		db.Close()
		return nil, errors.Wrapf(ErrNotMirror, "%s has schema version %d", path, version)
	}
	return &Store{db: db, readOnly: true}, nil
}

func connect(path string, readOnly bool) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("mirror path is empty")
	}
	dsn := path
	if readOnly {
		dsn = "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to database %s", path)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// migrate applies the schema and every pending migration in one
// transaction, then records the new user_version.
func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin migration")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaSQL); err != nil {
		return errors.Wrap(err, "failed to execute schema")
	}
	for v := version; v < currentSchemaVersion; v++ {
		if err := migrations[v](tx); err != nil {
			return errors.Wrapf(err, "migrate to v%d", v+1)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return errors.Wrap(err, "set user_version")
	}
	return errors.Wrap(tx.Commit(), "commit migration")
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, errors.Wrap(err, "get user_version")
	}
	return version, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// pragma returns the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", errors.Wrapf(err, "failed to query %s", name)
	}
	return value, nil
}
