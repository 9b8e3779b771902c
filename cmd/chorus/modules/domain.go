package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/chorusbot/chorus/internal/admin"
	"github.com/chorusbot/chorus/internal/config"
	"github.com/chorusbot/chorus/internal/gateway"
	"github.com/chorusbot/chorus/internal/helper"
	"github.com/chorusbot/chorus/internal/orchestrator"
	"github.com/chorusbot/chorus/internal/pluralkit"
	"github.com/chorusbot/chorus/internal/proxy"
	"github.com/chorusbot/chorus/internal/schedule"
	"github.com/chorusbot/chorus/internal/session"
	"github.com/chorusbot/chorus/internal/store"
	"github.com/chorusbot/chorus/internal/syncer"
)

var DomainModule = fx.Module(
	"Domain",
	fx.Provide(
		session.NewRegistry,
		orchestrator.NewPrimaryRef,
		provideHelper,
		provideSupervisor,
		provideCache,
		provideProxyHandler,
		provideOrchestrator,
		provideSyncEngine,
		provideRegistrar,
		provideSchedule,
	),
	fx.Invoke(
		startOrchestrator,
		startSchedule,
	),
)

func provideHelper(log *slog.Logger, dialer gateway.Dialer, cfg config.Config) *helper.Helper {
	dial := func(credential string) (helper.Conn, error) {
		return dialer.Dial(credential)
	}
	return helper.New(log, dial, cfg.Discord.HelperToken, cfg.Proxy.EmoteTimeout())
}

func provideSupervisor(log *slog.Logger, h *helper.Helper, cfg config.Config) *helper.Supervisor {
	return helper.NewSupervisor(log, h, cfg.Proxy.RetryCeiling)
}

func provideCache(cfg config.Config) *proxy.Cache {
	return proxy.NewCache(cfg.Proxy.RecentCacheCapacity)
}

func provideProxyHandler(log *slog.Logger, records *store.Service, sup *helper.Supervisor, ref *orchestrator.PrimaryRef, cache *proxy.Cache, cfg config.Config) *proxy.Handler {
	return proxy.NewHandler(log, records, sup, ref, cache, proxy.Options{
		CommandPrefix:      cfg.Discord.CommandPrefix,
		GuildID:            cfg.Discord.GuildID,
		DeleteLogChannelID: cfg.Discord.DeleteLogChannelID,
		DeleteLogUserID:    cfg.Discord.DeleteLogUserID,
	})
}

func provideOrchestrator(log *slog.Logger, dialer gateway.Dialer, records *store.Service, registry *session.Registry, h *helper.Helper, handler *proxy.Handler, ref *orchestrator.PrimaryRef, cfg config.Config) *orchestrator.Orchestrator {
	return orchestrator.New(log, dialer, records, registry, h, handler, ref,
		cfg.Discord.ServiceToken, cfg.Discord.GuildID, cfg.Discord.LoggingChannelID)
}

func provideSyncEngine(log *slog.Logger, source *pluralkit.Client, records *store.Service, registry *session.Registry, cfg config.Config) *syncer.Engine {
	return syncer.NewEngine(log, source, records, registrySessions{registry},
		cfg.Sync.BatchSize, cfg.Sync.UnitTimeout(), cfg.Sync.DefaultRoleIDs)
}

// registrySessions adapts the session registry to the sync engine's lookup.
type registrySessions struct {
	registry *session.Registry
}

func (s registrySessions) Get(externalID string) (syncer.Updater, bool) {
	inst, ok := s.registry.Get(externalID)
	if !ok {
		return nil, false
	}
	return inst, true
}

func provideRegistrar(log *slog.Logger, source *pluralkit.Client, records *store.Service, orch *orchestrator.Orchestrator, engine *syncer.Engine) *admin.Registrar {
	return admin.NewRegistrar(log, source, records, orch, engine)
}

func provideSchedule(log *slog.Logger, engine *syncer.Engine, cfg config.Config) *schedule.Service {
	return schedule.NewService(log, engine, cfg.Sync.CronPattern)
}

func startOrchestrator(lc fx.Lifecycle, orch *orchestrator.Orchestrator) {
	lc.Append(fx.Hook{
		OnStart: orch.Start,
		OnStop: func(ctx context.Context) error {
			orch.Stop(ctx)
			return nil
		},
	})
}

func startSchedule(lc fx.Lifecycle, svc *schedule.Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return svc.Start()
		},
		OnStop: func(context.Context) error {
			svc.Stop()
			return nil
		},
	})
}
