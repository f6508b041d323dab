package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
)

// ctxKey is where the per-update context.Context lives in tele.Context.
const ctxKey = "formbot.ctx"

func cached(c tele.Context) (context.Context, bool) {
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the logging context of the update served by c,
// creating it on first use. It carries the rid and the update, user and
// chat IDs.
func BuildContext(c tele.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if ctx, ok := cached(c); ok {
		return ctx
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	upd := c.Update()
	rid := logger.BuildRID(upd.ID, chatID, userID)

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	c.Set("rid", rid)
	c.Set(ctxKey, ctx)
	return ctx
}

// WithHandler tags the update context with the handler serving it.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	if c != nil {
		c.Set(ctxKey, ctx)
	}
	return ctx
}
