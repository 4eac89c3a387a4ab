package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Supported drivers
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = errors.New("intervention not found")

// DB wraps the SQL connection that stores intervention documents and
// fans out realtime snapshots to subscribers
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger
	hub    *hub
	now    func() time.Time
}

// Option configures Open
type Option func(*DB)

// WithLogger sets the logger used for decode warnings and realtime errors
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithPollInterval sets how often subscribed documents are checked for
// writes made by other processes
func WithPollInterval(d time.Duration) Option {
	return func(db *DB) {
		db.hub.interval = d
	}
}

// WithClock overrides the clock used for updated_at stamps
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// DefaultDataDir returns the default data directory path
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".terrain"
	}
	return filepath.Join(home, ".local", "share", "terrain")
}

// DefaultDBPath returns the default database file path
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "terrain.db")
}

// Open opens a database connection and runs migrations.
// For sqlite3 dsn is a file path; for mysql it is a driver DSN or a
// mysql:// / mariadb:// URL.
func Open(driver, dsn string, opts ...Option) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)

	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		sqlDB, err = openSQLite(dsn)
	case DriverMySQL:
		sqlDB, err = openMySQL(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	db := &DB{
		DB:     sqlDB,
		driver: driver,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	db.hub = newHub(db)
	for _, opt := range opts {
		opt(db)
	}

	// Run migrations
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func openSQLite(dbPath string) (*sql.DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		// Ensure the directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		// WAL mode so CLI commands can write while a view is open
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", dbPath)
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(1) // SQLite only supports one writer
	sqlDB.SetMaxIdleConns(1)

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return sqlDB, nil
}

func openMySQL(dsn string) (*sql.DB, error) {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return sqlDB, nil
}

// migrate runs database migrations using embedded SQL files
func (db *DB) migrate() error {
	// Silence goose logging (it corrupts TUI output)
	goose.SetLogger(log.New(io.Discard, "", 0))
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(db.driver); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close stops realtime delivery and closes the database connection
func (db *DB) Close() error {
	db.hub.close()
	return db.DB.Close()
}

// Transaction executes a function within a transaction
func (db *DB) Transaction(fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
