// Package app wires the tariff bot: configuration, storage, the conversation
// machine and its Telegram handlers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"

	"github.com/etf-team/tariffbot/core/bootstrap"
	corecmd "github.com/etf-team/tariffbot/core/cmd"
	"github.com/etf-team/tariffbot/core/logger"
	"github.com/etf-team/tariffbot/core/metrics"
	tg "github.com/etf-team/tariffbot/core/telegram"
	tghelpers "github.com/etf-team/tariffbot/core/telegram/helpers"
	"github.com/etf-team/tariffbot/core/telegram/router"
	"github.com/etf-team/tariffbot/core/telegram/state"
	"github.com/etf-team/tariffbot/core/telegram/ui"
	"github.com/etf-team/tariffbot/internal/conversation"
	"github.com/etf-team/tariffbot/internal/registry"
	"github.com/etf-team/tariffbot/internal/reminder"
	"github.com/etf-team/tariffbot/internal/tariff"

	tele "gopkg.in/telebot.v4"
)

// App holds the bot dependencies.
type App struct {
	cfg *Config
	db  *sqlx.DB

	users   *registry.Repository
	store   state.Manager
	memory  state.MemoryManager
	redis   *state.RedisManager
	prom    *prometheus.Registry
	metrics *metrics.Metrics
	tariff  *tariff.Client
	machine *conversation.Machine
	reg     *tg.Registry
	texts   ui.Texts

	bot    atomic.Pointer[tele.Bot]
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Bootstrap initializes logging and the database, then builds the App.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(bootstrap.Options{Config: &cfg.Core, Database: cfg.Database})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, res.DB)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

// New builds the App on top of an open database.
func New(cfg *Config, db *sqlx.DB) (*App, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("app: config and database are required")
	}
	a := &App{
		cfg:   cfg,
		db:    db,
		users: registry.NewRepository(db),
		prom:  prometheus.NewRegistry(),
		reg:   tg.NewRegistry(),
		texts: ui.Texts{Unknown: textUnknown, Callback: textStaleButton, Limited: textRateLimited},
	}
	a.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.prom)

	switch cfg.Sessions.Backend {
	case SessionsRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Sessions.Redis.Addr,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
		})
		a.redis = state.NewRedisManager(client,
			state.WithRedisTTL(cfg.Sessions.TTL),
			state.WithRedisPrefix(cfg.Sessions.Redis.Prefix),
		)
		a.store = a.redis
	default:
		a.memory = state.NewMemoryManager(state.WithMemoryTTL(cfg.Sessions.TTL))
		a.store = a.memory
	}

	client, err := tariff.New(cfg.Tariff, nil)
	if err != nil {
		return nil, err
	}
	a.tariff = client

	a.machine, err = conversation.New(a.store, a.tariff, conversation.Options{
		DocumentFlow:     cfg.Conversation.DocumentFlow,
		ManualFlow:       cfg.Conversation.ManualFlow,
		MaxInvalidInputs: cfg.Conversation.MaxInvalidInputs,
		MaxDocumentBytes: cfg.Conversation.MaxDocumentBytes,
		Observer:         a.metrics,
		OnFailure:        a.notifyAdmin,
	})
	if err != nil {
		return nil, err
	}

	a.registerCommands()
	a.registerCallbacks()
	return a, nil
}

// TelegramRunOptions assembles the routes, middlewares and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.reg, router.CommandRouteOptions{
		AdminID:       a.cfg.Core.Telegram.AdminID,
		OnAdminReject: a.texts.UnknownText(),
	})
	routes = append(routes, router.CallbackRoute(a.reg, router.CallbackOptions{
		NotFound: a.texts.UnknownCallback(),
	}))
	routes = append(routes, router.TextRoutes(conversationAdapter{app: a}, a.reg, router.TextOptions{
		UnknownText: a.texts.UnknownText(),
	})...)

	return tg.RunOptions{
		Config:   &a.cfg.Core,
		Registry: a.reg,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Core, tg.MiddlewareOptions{
			OnLimited:   a.texts.RateLimited(),
			CountUpdate: a.metrics.UpdateReceived,
		}),
		Routes:  routes,
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	a.bot.Store(rt.Bot)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	b := reminder.New(a.cfg.Reminder, a.users, notifier{bot: rt.Bot})
	b.OnDelivery = a.metrics.ReminderDelivered
	a.goRun(func() { b.Run(runCtx) })

	if a.memory != nil && a.cfg.Sessions.TTL > 0 {
		a.goRun(func() { a.memory.RunSweeper(runCtx, a.cfg.Sessions.SweepInterval) })
	}

	if listen := a.cfg.Metrics.Listen; listen != "" {
		handler := metrics.NewHandler(a.prom, a.health)
		a.goRun(func() {
			if err := metrics.Serve(runCtx, listen, handler); err != nil {
				logger.Error(runCtx, "metrics", "serve.fail", slog.String("err", err.Error()))
			}
		})
	}

	logger.Info(ctx, "app", "wired",
		slog.String("sessions", a.cfg.Sessions.Backend),
		slog.String("document_flow", a.cfg.Conversation.DocumentFlow),
		slog.String("manual_flow", a.cfg.Conversation.ManualFlow),
		slog.Int("routes", len(a.machine.Routes())),
	)
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn(ctx, "app", "stop.timeout")
	}

	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) health(ctx context.Context) error {
	if err := a.users.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// notifyAdmin reports a failed submission to the configured admin chat.
func (a *App) notifyAdmin(ctx context.Context, userID int64, flow string, err error) {
	adminID := a.cfg.Core.Telegram.AdminID
	bot := a.bot.Load()
	if adminID == 0 || bot == nil {
		return
	}
	text := fmt.Sprintf(textAdminFailure, userID, flow, err)
	if sendErr := tghelpers.SendTo(ctx, bot, adminID, text); sendErr != nil {
		logger.Warn(ctx, "app", "admin.notify_fail", slog.String("err", sendErr.Error()))
	}
}

// notifier delivers reminders through the bot.
type notifier struct {
	bot tghelpers.Sender
}

func (n notifier) Notify(ctx context.Context, userID int64, text string) error {
	return tghelpers.SendTo(ctx, n.bot, userID, text)
}
