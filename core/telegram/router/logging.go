package router

import (
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
	tghelpers "github.com/m3rciful/formbot/core/telegram/helpers"
	"github.com/m3rciful/formbot/core/telegram/middleware"
	"github.com/m3rciful/formbot/core/telegram/netutil"
)

// handled runs fn as handler name and writes one summary line for it: the
// replies sent, the outcome the handler reported and how long it took.
func handled(c tele.Context, name string, fn func() error, extras ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)
	err := fn()

	counters := middleware.CountersFrom(c)
	outcome := counters.Outcome
	if outcome == "" {
		outcome = logger.Status(err)
	}
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("outcome", outcome),
		slog.Int("messages", counters.Messages),
		slog.Bool("kb", counters.Keyboard),
		slog.Duration("duration", logger.Took(start)),
	}
	attrs = append(attrs, extras...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(netutil.RedactToken(err.Error()), 256)),
			slog.String("err_code", netutil.Classify(err)),
		)
		logger.Warn(ctx, "tg", "handler.handled", attrs...)
		return err
	}
	logger.Info(ctx, "tg", "handler.handled", attrs...)
	return nil
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}
