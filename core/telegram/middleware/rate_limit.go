package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
	tghelpers "github.com/m3rciful/formbot/core/telegram/helpers"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists update classes that bypass the limit: "message",
	// "callback", "inline_query" or "other".
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// senderWindow remembers when each sender was last let through. Entries
// older than the interval carry no information and are pruned.
type senderWindow struct {
	mu        sync.Mutex
	interval  time.Duration
	lastSeen  map[int64]time.Time
	lastPrune time.Time
}

func newSenderWindow(interval time.Duration) *senderWindow {
	return &senderWindow{interval: interval, lastSeen: make(map[int64]time.Time)}
}

// allow reports whether id may pass at now and records the pass.
func (w *senderWindow) allow(id int64, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.lastPrune) > 10*w.interval {
		for k, ts := range w.lastSeen {
			if now.Sub(ts) >= w.interval {
				delete(w.lastSeen, k)
			}
		}
		w.lastPrune = now
	}
	if last, ok := w.lastSeen[id]; ok && now.Sub(last) < w.interval {
		return false
	}
	w.lastSeen[id] = now
	return true
}

func (w *senderWindow) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lastSeen)
}

func updateClass(c tele.Context) string {
	switch kind := UpdateKind(c); kind {
	case "callback", "inline_query", "other":
		return kind
	}
	return "message"
}

// RateLimitMiddleware drops updates arriving from the same sender within
// Interval of the last accepted one.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	window := newSenderWindow(opts.Interval)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			class := updateClass(c)
			if _, skip := opts.Exclude[class]; skip {
				return next(c)
			}
			if window.allow(user.ID, time.Now()) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", class),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
