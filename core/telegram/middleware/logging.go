package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/formbot/core/telegram/helpers"
)

// receiptLog remembers recently logged update IDs. The logger middleware
// runs both globally and on each route, so an update passes it twice.
type receiptLog struct {
	mu   sync.Mutex
	seen map[int]time.Time
	ttl  time.Duration
}

var receipts = &receiptLog{seen: make(map[int]time.Time), ttl: 10 * time.Second}

// first reports whether id has not been seen within ttl, and marks it.
func (r *receiptLog) first(id int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, ts := range r.seen {
		if now.Sub(ts) > r.ttl {
			delete(r.seen, k)
		}
	}
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = now
	return true
}

// LoggerMiddleware attaches the request context (rid and update ids) and
// writes one sampled debug line per update. Message text goes out under
// "text" so the logger masks it.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if _, ok := c.Get("update_start").(time.Time); !ok {
			c.Set("update_start", time.Now())
		}

		if logger.ShouldSampleDebug() && receipts.first(upd.ID, time.Now()) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("kind", UpdateKind(c)),
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user := c.Sender(); user != nil && user.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", user.LanguageCode))
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.ParseCallbackData(upd.Callback)
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(key, 64)),
					slog.String("text", payload),
				)
			case upd.Message != nil:
				attrs = append(attrs, slog.String("text", logger.SanitizeLimit(c.Text(), 256)))
			}
			logger.Debug(ctx, "tg", "update.received", attrs...)
		}
		return next(c)
	}
}
