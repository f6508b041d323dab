package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/formbot/core/telegram"
	"github.com/m3rciful/formbot/core/telegram/callbacks"
	"github.com/m3rciful/formbot/core/telegram/middleware"
)

// CallbackRoute dispatches inline button presses by their unique key.
// Unknown keys get the registry's not-found answer.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key, _ := callbacks.ParseCallbackData(cb)
		name := "callback." + normalizeHandlerName(key)

		h, ok := reg.GetCallback(key)
		if !ok {
			return handled(c, name, func() error {
				if nf := reg.CallbackNotFound(); nf != nil {
					return nf(c)
				}
				return c.Respond()
			}, slog.String("cb_key", key), slog.String("cause", "not_found"))
		}
		return handled(c, name, func() error {
			// Stop the button spinner; the handler replies with messages.
			_ = c.Respond()
			return h(c)
		}, slog.String("cb_key", key))
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
