// Package app assembles the form bot from configuration: storage, the
// conversation machine, the Telegram adapter and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/bootstrap"
	coreconfig "github.com/m3rciful/formbot/core/config"
	"github.com/m3rciful/formbot/core/logger"
	tg "github.com/m3rciful/formbot/core/telegram"
	"github.com/m3rciful/formbot/core/telegram/router"
	"github.com/m3rciful/formbot/core/telegram/sender"
	formbot "github.com/m3rciful/formbot/form/bot"
	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/machine"
	"github.com/m3rciful/formbot/form/metrics"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/sink"
)

const component = "app"

// App implements cmd.TelegramApp.
type App struct {
	cfg      *coreconfig.Config
	infra    *bootstrap.Result
	stores   *Stores
	catalog  *script.Catalog
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	buildBot func(*coreconfig.Config) (*tele.Bot, error)

	sweepStop context.CancelFunc
	sweepDone chan struct{}
}

// Bootstrap opens the configured backends and builds the App.
func Bootstrap(ctx context.Context, cfg *coreconfig.Config) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	a, err := New(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// New builds the App on already opened backends.
func New(cfg *coreconfig.Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	stores, err := OpenStores(cfg, infra)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		cfg:      cfg,
		infra:    infra,
		stores:   stores,
		catalog:  NewCatalog(cfg),
		registry: registry,
		metrics:  metrics.New(registry),
		buildBot: tg.BuildBot,
	}, nil
}

// NewCatalog builds the question script described by cfg.Form.
func NewCatalog(cfg *coreconfig.Config) *script.Catalog {
	return script.New(script.Options{
		PhotoStep:       cfg.Form.PhotoStep,
		MinPhoneDigits:  cfg.Form.MinPhoneDigits,
		DefaultLanguage: lang.Language(cfg.Form.DefaultLanguage),
	})
}

// Stores exposes the session manager and record log.
func (a *App) Stores() *Stores {
	return a.stores
}

// Close releases the backends.
func (a *App) Close() error {
	return a.infra.Close()
}

// TelegramRunOptions wires the bot. The returned dispatcher is owned by
// RunTelegram, which closes it on exit.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	cfg := a.cfg
	bot, err := a.buildBot(cfg)
	if err != nil {
		return tg.RunOptions{}, err
	}

	dispatcher := sender.NewDispatcher(sender.Options{
		QueueSize:   cfg.Notify.QueueSize,
		Workers:     cfg.Notify.Workers,
		MaxRetries:  cfg.Notify.MaxRetries,
		MaxDuration: cfg.Notify.Timeout,
		OnFailure: func(_ context.Context, action string, _ error) {
			if action == formbot.NotifyAction {
				a.metrics.NotifyFailed()
			}
		},
	})
	notifier, err := formbot.NewNotifier(bot, cfg.Notify.ChatID, dispatcher)
	if err != nil {
		dispatcher.Close()
		return tg.RunOptions{}, err
	}

	snk := sink.New(a.stores.Records, notifier, a.catalog,
		sink.WithNotifyTimeout(cfg.Notify.Timeout),
		sink.WithMetrics(a.metrics),
	)
	m := machine.New(a.stores.Sessions, a.catalog, snk, machine.Options{
		PromptLanguage: cfg.Form.PromptLanguage,
		Metrics:        a.metrics,
	})

	var stats formbot.StatsFunc
	if cfg.Telegram.AdminID != 0 {
		stats = a.Stats
	}
	handlers := formbot.New(m, a.catalog, stats)
	reg := tg.NewRegistry()
	if err := handlers.Register(reg); err != nil {
		dispatcher.Close()
		return tg.RunOptions{}, err
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: cfg.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(reg))
	routes = append(routes, router.MessageRoutes(handlers, reg)...)

	server := tg.NewServer(tg.ServerOptions{
		Listen:   cfg.Webhook.Listen,
		Port:     cfg.Webhook.Port,
		Gatherer: a.registry,
	})

	return tg.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Bot:         bot,
		Server:      server,
		Dispatcher:  dispatcher,
		Middlewares: tg.DefaultMiddlewares(cfg, handlers.SlowDown, a.metrics.Update),
		Routes:      routes,
		OnStart: func(ctx context.Context, _ tg.Runtime) error {
			a.startSweep(ctx, m)
			return nil
		},
		OnStop: func(context.Context, tg.Runtime) error {
			a.stopSweep()
			return nil
		},
	}, nil
}

// Stats counts open sessions and stored applications.
func (a *App) Stats(ctx context.Context) (formbot.Snapshot, error) {
	n, err := a.stores.Sessions.Count(ctx)
	if err != nil {
		return formbot.Snapshot{}, err
	}
	recs, err := a.stores.Records.List(ctx, 0)
	if err != nil {
		return formbot.Snapshot{}, err
	}
	return formbot.Snapshot{Sessions: n, Records: len(recs)}, nil
}

// startSweep discards idle sessions every SweepInterval until stopSweep.
func (a *App) startSweep(ctx context.Context, m *machine.Machine) {
	interval := a.cfg.Form.SweepInterval
	if a.cfg.Form.SessionTTL <= 0 || interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.sweepStop, a.sweepDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Sweep(ctx); err != nil {
					logger.Warn(ctx, component, "sweep",
						slog.String("status", "error"),
						slog.String("err", err.Error()),
					)
				}
			}
		}
	}()
	logger.Info(ctx, component, "sweep.start",
		slog.Duration("interval", interval),
		slog.Duration("ttl", a.cfg.Form.SessionTTL),
	)
}

func (a *App) stopSweep() {
	if a.sweepStop == nil {
		return
	}
	a.sweepStop()
	<-a.sweepDone
	a.sweepStop, a.sweepDone = nil, nil
}
