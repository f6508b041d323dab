package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/formbot/core/config"
	"github.com/m3rciful/formbot/core/logger"
	tghelpers "github.com/m3rciful/formbot/core/telegram/helpers"
	"github.com/m3rciful/formbot/core/telegram/netutil"
	tgsender "github.com/m3rciful/formbot/core/telegram/sender"
)

// Middleware is a global bot middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a tele.Bot.Handle endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// Bot is built from Config when nil.
	Bot *tele.Bot
	// Server serves the status endpoints and, in webhook mode, receives updates.
	Server *Server
	// Dispatcher is owned by RunTelegram and closed on exit. A default one is
	// created when nil.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes the running components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// BuildBot creates the bot with the poller matching cfg. Updates are handled
// one at a time in arrival order.
func BuildBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	longPoll := time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	if longPoll <= 0 {
		longPoll = defaultLongPoll
	}
	bot, err := tele.NewBot(tele.Settings{
		Token: cfg.Telegram.Token,
		Poller: BuildPoller(PollerOptions{
			RunMode:                cfg.Telegram.RunMode,
			LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
			Webhook: WebhookOptions{
				URL:         cfg.Webhook.URL,
				Path:        cfg.Webhook.Path,
				SecretToken: cfg.Webhook.SecretToken,
			},
		}),
		Client:      BuildHTTPClient(longPoll),
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			logger.Error(tghelpers.BuildContext(c), "tg", "bot.error",
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// RunTelegram wires opts into the bot and runs it with the HTTP server
// until ctx is done or either of them stops.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	rt, err := prepare(opts)
	if err != nil {
		return err
	}
	defer func() {
		rt.Dispatcher.Close()
		tghelpers.SetDispatcher(nil)
	}()

	if err := announceMode(ctx, opts, rt.Bot); err != nil {
		return err
	}
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			rt.Bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			rt.Bot.Handle(route.Endpoint, route.Handler)
		}
	}
	_ = PublishCommands(rt.Bot, rt.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}
	runErr := serve(ctx, rt.Bot, opts.Server)

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func prepare(opts RunOptions) (Runtime, error) {
	rt := Runtime{Bot: opts.Bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}
	if rt.Registry == nil {
		rt.Registry = NewRegistry()
	}
	if rt.Bot == nil {
		bot, err := BuildBot(opts.Config)
		if err != nil {
			return Runtime{}, err
		}
		rt.Bot = bot
	}
	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(tgsender.Options{})
	}
	tghelpers.SetDispatcher(rt.Dispatcher)
	return rt, nil
}

// announceMode mounts the webhook receiver or, for long polling, clears a
// webhook left behind by a previous deployment.
func announceMode(ctx context.Context, opts RunOptions, bot *tele.Bot) error {
	cfg := opts.Config
	if wh, ok := bot.Poller.(*tele.Webhook); ok {
		if opts.Server == nil {
			return fmt.Errorf("telegram: webhook mode requires an HTTP server")
		}
		opts.Server.MountWebhook(cfg.Webhook.Path, cfg.Webhook.SecretToken, bot.Updates)
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", RunModeWebhook),
			slog.String("listen", opts.Server.Addr()),
			slog.String("public_url", wh.Endpoint.PublicURL),
		)
		return nil
	}

	timeout := defaultLongPoll
	if lp, ok := bot.Poller.(*tele.LongPoller); ok && lp.Timeout > 0 {
		timeout = lp.Timeout
	}
	logger.Info(ctx, "tg", "mode",
		slog.String("mode", RunModeLongpoll),
		slog.Duration("timeout", timeout),
	)
	if err := deleteWebhook(ctx, cfg.Telegram.Token); err != nil {
		logger.Warn(ctx, "tg", "delete_webhook",
			slog.String("status", "error"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
	return nil
}

// serve runs the poller and the HTTP server until ctx is done or one of
// them exits, then stops both.
func serve(ctx context.Context, bot *tele.Bot, server *Server) error {
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	// serverDone stays nil without a server so the select ignores it.
	var serverDone chan error
	if server != nil {
		serverDone = make(chan error, 1)
		go func() { serverDone <- server.Start(serverCtx) }()
	}
	botDone := make(chan struct{})
	go func() {
		bot.Start()
		close(botDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-serverDone:
		serverDone = nil
	case <-botDone:
	}

	select {
	case <-botDone:
	default:
		bot.Stop()
		<-botDone
	}
	stopServer()
	if serverDone != nil {
		if err := <-serverDone; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func deleteWebhook(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("drop_pending_updates=false"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.New(netutil.RedactToken(err.Error()))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
