package modules

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/chorusbot/chorus/internal/admin"
	"github.com/chorusbot/chorus/internal/config"
	"github.com/chorusbot/chorus/internal/handlers"
	"github.com/chorusbot/chorus/internal/server"
	"github.com/chorusbot/chorus/internal/store"
	"github.com/chorusbot/chorus/internal/syncer"
)

var ServerModule = fx.Module(
	"Server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideMemberHandler),
		provideServerHandler(provideCredentialHandler),
		provideServerHandler(provideUserHandler),
		provideServerHandler(provideSyncHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideMemberHandler(log *slog.Logger, records *store.Service, registrar *admin.Registrar) *handlers.MemberHandler {
	return handlers.NewMemberHandler(log, records, registrar)
}

func provideCredentialHandler(log *slog.Logger, registrar *admin.Registrar) *handlers.CredentialHandler {
	return handlers.NewCredentialHandler(log, registrar)
}

func provideUserHandler(log *slog.Logger, records *store.Service) *handlers.UserHandler {
	return handlers.NewUserHandler(log, records)
}

func provideSyncHandler(log *slog.Logger, registrar *admin.Registrar, engine *syncer.Engine) *handlers.SyncHandler {
	return handlers.NewSyncHandler(log, registrar, engine)
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr,
		params.Config.Server.AdminToken, params.Handlers...)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func startServer(lc fx.Lifecycle, srv *server.Server, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: srv.Stop,
	})
}
