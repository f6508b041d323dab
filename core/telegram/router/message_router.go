package router

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/formbot/core/telegram"
	"github.com/m3rciful/formbot/core/telegram/middleware"
)

// Conversation consumes every message that is not a command.
type Conversation interface {
	HandleMessage(c tele.Context) error
}

// MessageEndpoints lists the message kinds routed to the conversation.
var MessageEndpoints = []string{
	tele.OnText,
	tele.OnPhoto,
	tele.OnDocument,
	tele.OnContact,
	tele.OnLocation,
	tele.OnVoice,
	tele.OnAudio,
	tele.OnVideo,
	tele.OnVideoNote,
	tele.OnAnimation,
	tele.OnSticker,
}

// MessageRoutes sends plain messages to conv. Telebot only routes a slash
// command by its primary name, so a command alias arriving as text is
// resolved through reg first.
func MessageRoutes(conv Conversation, reg *tg.Registry) []tg.Route {
	handler := func(c tele.Context) error {
		kind := middleware.UpdateKind(c)
		if reg != nil && kind == "command" {
			if key, cmd, ok := reg.LookupCommand(commandName(c.Text())); ok {
				return handled(c, normalizeHandlerName(key), func() error { return cmd.Handler(c) })
			}
		}
		return handled(c, "form."+kind, func() error { return conv.HandleMessage(c) })
	}

	wrapped := middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler))
	routes := make([]tg.Route, 0, len(MessageEndpoints))
	for _, endpoint := range MessageEndpoints {
		routes = append(routes, tg.Route{Endpoint: endpoint, Handler: wrapped})
	}
	return routes
}

// commandName strips arguments and a trailing @botname from a command.
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name
}
