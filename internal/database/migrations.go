package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/singbox-orbit/node-agent/internal/database/postgres"
)

// RunMigrations applies all pending schema migrations for the backup index
// (standard deployment profile only).
func RunMigrations(ctx context.Context, pool postgres.DatabaseConnection, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting backup index migrations")

	migrationsDir := filepath.Join("migrations")

	db, err := createSQLDBFromPool(pool)
	if err != nil {
		logger.Error("failed to create sql.DB from pool", "error", err)
		return fmt.Errorf("failed to create SQL DB: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("failed to set goose dialect", "error", err)
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("backup index migrations completed")
	return nil
}

// RunMigrationsDown rolls migrations back by the given number of steps.
func RunMigrationsDown(ctx context.Context, pool postgres.DatabaseConnection, steps int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("rolling back backup index migrations", "steps", steps)

	migrationsDir := filepath.Join("migrations")

	db, err := createSQLDBFromPool(pool)
	if err != nil {
		logger.Error("failed to create sql.DB from pool", "error", err)
		return fmt.Errorf("failed to create SQL DB: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("failed to set goose dialect", "error", err)
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	for i := 0; i < steps; i++ {
		if err := goose.Down(db, migrationsDir); err != nil {
			logger.Error("failed to rollback migrations", "error", err, "steps", steps)
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
	}

	logger.Info("backup index migration rollback completed", "steps", steps)
	return nil
}

// GetMigrationStatus logs the current migration status.
func GetMigrationStatus(ctx context.Context, pool postgres.DatabaseConnection, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	migrationsDir := filepath.Join("migrations")

	db, err := createSQLDBFromPool(pool)
	if err != nil {
		logger.Error("failed to create sql.DB from pool", "error", err)
		return fmt.Errorf("failed to create SQL DB: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("failed to set goose dialect", "error", err)
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Status(db, migrationsDir); err != nil {
		logger.Error("failed to get migration status", "error", err)
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	return nil
}

// RunSQLiteMigrations applies all pending schema migrations against an
// embedded SQLite database (standard profile, storageBackend=sqlite). The
// caller owns db's lifetime; unlike RunMigrations this does not open or
// close a connection itself, since the same *sql.DB handle is handed to
// backupstore.NewSQLIndex afterward.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting backup index migrations (sqlite)")

	if err := goose.SetDialect("sqlite3"); err != nil {
		logger.Error("failed to set goose dialect", "error", err)
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, filepath.Join("migrations", "sqlite")); err != nil {
		logger.Error("failed to run migrations", "error", err)
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("backup index migrations completed (sqlite)")
	return nil
}

// OpenSQLite opens the embedded SQLite database at path for the backup
// index. Callers should run RunSQLiteMigrations against the returned *sql.DB
// before passing it to backupstore.NewSQLIndex.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite DB: %w", err)
	}
	// SQLite has no real concurrent-writer story; cap at one connection so
	// database/sql's pool can't hand out two writers at once.
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgresSQLDB adapts a pgxpool-backed DatabaseConnection into the
// *sql.DB backupstore.NewSQLIndex needs, using the same DSN the pool itself
// connects with. Call after RunMigrations has applied the schema.
func OpenPostgresSQLDB(pool postgres.DatabaseConnection) (*sql.DB, error) {
	return createSQLDBFromPool(pool)
}

// createSQLDBFromPool adapts a pgxpool-backed DatabaseConnection into the
// *sql.DB goose needs, using the same DSN the pool itself connects with.
func createSQLDBFromPool(pool postgres.DatabaseConnection) (*sql.DB, error) {
	pgPool, ok := pool.(*postgres.PostgresPool)
	if !ok {
		return nil, fmt.Errorf("unsupported pool type")
	}

	config := pgPool.GetConfig()

	db, err := sql.Open("pgx", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQL DB: %w", err)
	}

	db.SetMaxOpenConns(int(config.MaxConns))
	db.SetMaxIdleConns(int(config.MinConns))
	db.SetConnMaxLifetime(config.MaxConnLifetime)
	db.SetConnMaxIdleTime(config.MaxConnIdleTime)

	return db, nil
}
