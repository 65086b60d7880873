package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/converso/gateway/internal/auth"
	"github.com/converso/gateway/internal/channel"
	"github.com/converso/gateway/internal/channel/adapters/restapi"
	"github.com/converso/gateway/internal/channel/adapters/slack"
	"github.com/converso/gateway/internal/channel/adapters/webchat"
	webhookadapter "github.com/converso/gateway/internal/channel/adapters/webhook"
	"github.com/converso/gateway/internal/channel/adapters/whatsapp"
	"github.com/converso/gateway/internal/config"
	"github.com/converso/gateway/internal/conversation"
	"github.com/converso/gateway/internal/db"
	"github.com/converso/gateway/internal/gateway"
	"github.com/converso/gateway/internal/handlers"
	"github.com/converso/gateway/internal/logger"
	"github.com/converso/gateway/internal/message"
	"github.com/converso/gateway/internal/server"
	"github.com/converso/gateway/internal/webhook"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideRoutingCodec,
			provideChannelRegistry,
			provideChannelStore,
			provideMessageStore,
			provideConversationStore,
			provideThreader,
			provideEventStore,
			provideTester,
			provideDispatcher,
			provideWebhookRouter,
			providePingHandler,
			provideChannelsHandler,
			provideConversationsHandler,
			provideWebhooksHandler,
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideRoutingCodec(cfg config.Config) (*auth.RoutingCodec, error) {
	return auth.NewRoutingCodec(cfg.RoutingSecret())
}

func provideChannelRegistry(log *slog.Logger) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(whatsapp.New(log))
	registry.MustRegister(slack.New(log))
	registry.MustRegister(webchat.New(log))
	registry.MustRegister(restapi.New(log))
	registry.MustRegister(webhookadapter.New(log))
	return registry
}

func provideChannelStore(log *slog.Logger, conn *pgxpool.Pool, registry *channel.Registry) (*channel.Store, error) {
	return channel.NewStore(log, conn, registry)
}

func provideMessageStore(log *slog.Logger, conn *pgxpool.Pool) *message.Store {
	return message.NewStore(log, conn)
}

func provideConversationStore(log *slog.Logger, conn *pgxpool.Pool) *conversation.Store {
	return conversation.NewStore(log, conn)
}

func provideThreader(log *slog.Logger, store *conversation.Store) *conversation.Threader {
	return conversation.NewThreader(log, store)
}

func provideEventStore(log *slog.Logger, conn *pgxpool.Pool) *webhook.EventStore {
	return webhook.NewEventStore(log, conn)
}

func provideTester(log *slog.Logger, registry *channel.Registry, store *channel.Store) *gateway.Tester {
	return gateway.NewTester(log, registry, store)
}

func provideDispatcher(log *slog.Logger, registry *channel.Registry, store *channel.Store, messages *message.Store, threader *conversation.Threader) *gateway.Dispatcher {
	return gateway.NewDispatcher(log, registry, store, messages, threader)
}

func provideWebhookRouter(log *slog.Logger, codec *auth.RoutingCodec, registry *channel.Registry, store *channel.Store, events *webhook.EventStore, messages *message.Store, threader *conversation.Threader) *webhook.Router {
	return webhook.NewRouter(log, codec, registry, store, events, messages, threader)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideChannelsHandler(log *slog.Logger, cfg config.Config, store *channel.Store, registry *channel.Registry, tester *gateway.Tester, dispatcher *gateway.Dispatcher, events *webhook.EventStore, codec *auth.RoutingCodec) *handlers.ChannelsHandler {
	return handlers.NewChannelsHandler(log, store, registry, tester, dispatcher, events, codec, cfg.Server.PublicURL)
}

func provideConversationsHandler(log *slog.Logger, store *conversation.Store, threader *conversation.Threader, messages *message.Store) *handlers.ConversationsHandler {
	return handlers.NewConversationsHandler(log, store, threader, messages)
}

func provideWebhooksHandler(log *slog.Logger, cfg config.Config, router *webhook.Router, registry *channel.Registry) *handlers.WebhooksHandler {
	return handlers.NewWebhooksHandler(log, router, registry, cfg.Webhook.MaxBodyBytes)
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, channelsHandler *handlers.ChannelsHandler, conversationsHandler *handlers.ConversationsHandler, webhooksHandler *handlers.WebhooksHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret, pingHandler, channelsHandler, conversationsHandler, webhooksHandler)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(stopCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
