package modules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	chorusdb "github.com/chorusbot/chorus/db"
	"github.com/chorusbot/chorus/internal/config"
	"github.com/chorusbot/chorus/internal/db"
	"github.com/chorusbot/chorus/internal/gateway"
	"github.com/chorusbot/chorus/internal/logger"
	"github.com/chorusbot/chorus/internal/pluralkit"
	"github.com/chorusbot/chorus/internal/store"
)

var InfraModule = fx.Module(
	"Infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		provideDBConn,
		store.NewService,
		providePluralKit,
		provideDialer,
	),
)

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideDBConn opens the pool and runs pending migrations before anything
// else touches the database. A stored schema newer than this binary refuses
// to start.
func provideDBConn(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	migrations, err := fs.Sub(chorusdb.MigrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	if err := db.EnsureSchema(log, cfg.Postgres, migrations); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func providePluralKit(log *slog.Logger, cfg config.Config) *pluralkit.Client {
	return pluralkit.NewClient(log, cfg.PluralKit)
}

func provideDialer(log *slog.Logger) gateway.Dialer {
	return gateway.NewDiscordDialer(log)
}
