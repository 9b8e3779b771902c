package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/chorusbot/chorus/internal/config"
)

// ErrSchemaTooNew is returned when the stored schema version is newer than the
// migrations compiled into this binary. Starting against such a database would
// misinterpret rows written by a later release.
var ErrSchemaTooNew = errors.New("stored schema version is newer than supported")

// RunMigrate applies or rolls back database migrations.
// The migrationsFS should contain .sql files at its root (not in a subdirectory).
// Supported commands: "up", "down", "version", "force N".
func RunMigrate(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS, command string, args []string) error {
	switch command {
	case "up", "down", "version", "force":
	default:
		return fmt.Errorf("unknown migrate command: %s (use: up, down, version, force)", command)
	}
	if command == "force" && len(args) == 0 {
		return fmt.Errorf("force requires a version number argument")
	}

	m, err := newMigrator(logger, cfg, migrationsFS)
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migrate up: %w", err)
		}
		ver, dirty, _ := m.Version()
		logger.Info("migration complete", slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))

	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info("all migrations rolled back")

	case "version":
		ver, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		logger.Info("current version", slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))

	case "force":
		var version int
		if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migrate force: %w", err)
		}
		logger.Info("forced version", slog.Int("version", version))
	}

	return nil
}

// EnsureSchema brings the stored schema up to the latest embedded migration at
// startup. It refuses to proceed when the stored version is ahead of the
// versions this binary ships, and applies exactly the pending upgrade scripts,
// in order, otherwise.
func EnsureSchema(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS) error {
	latest, err := LatestVersion(migrationsFS)
	if err != nil {
		return fmt.Errorf("inspect migrations: %w", err)
	}

	m, err := newMigrator(logger, cfg, migrationsFS)
	if err != nil {
		return err
	}
	defer m.Close()

	stored, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		stored = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := checkVersion(stored, dirty, latest); err != nil {
		return err
	}
	if uint64(stored) == latest {
		logger.Debug("schema up to date", slog.Uint64("version", latest))
		return nil
	}

	logger.Info("upgrading schema", slog.Uint64("from", uint64(stored)), slog.Uint64("to", latest))
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// checkVersion decides whether a stored schema version is safe to upgrade
// from. A dirty version needs manual resolution, and a version ahead of the
// embedded migrations means the database belongs to a later release.
func checkVersion(stored uint, dirty bool, latest uint64) error {
	if dirty {
		return fmt.Errorf("schema version %d is dirty; resolve with migrate force", stored)
	}
	if uint64(stored) > latest {
		return fmt.Errorf("%w: stored %d, supported %d", ErrSchemaTooNew, stored, latest)
	}
	return nil
}

// LatestVersion returns the highest migration version present in migrationsFS.
// Migration files are named NNNN_description.up.sql.
func LatestVersion(migrationsFS fs.FS) (uint64, error) {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return 0, err
	}
	var latest uint64
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		ver, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad migration filename %q: %w", name, err)
		}
		if ver > latest {
			latest = ver
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no .up.sql migrations found")
	}
	return latest, nil
}

func newMigrator(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("migrate init: %w", err)
	}
	m.Log = &migrateLogger{logger: logger}
	return m, nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
