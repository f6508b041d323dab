// Package bot adapts the form machine to Telegram: it turns updates into
// machine inputs, sends the replies in order and delivers finished
// applications to the group chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
	tg "github.com/m3rciful/formbot/core/telegram"
	"github.com/m3rciful/formbot/core/telegram/callbacks"
	"github.com/m3rciful/formbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/formbot/core/telegram/helpers"
	"github.com/m3rciful/formbot/core/telegram/middleware"
	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/machine"
	"github.com/m3rciful/formbot/form/script"
)

const component = "form.bot"

// SlowDownText answers updates dropped by the rate limiter.
const SlowDownText = "⏳ Слишком часто / Juda tez. Подождите / Kuting."

// Machine is the part of *machine.Machine the handlers drive.
type Machine interface {
	Handle(ctx context.Context, in machine.Inbound) (machine.Result, error)
	Start(ctx context.Context, id string, hint machine.Hint) (machine.Result, error)
	Abandon(ctx context.Context, id string) (machine.Result, error)
}

// Snapshot is what /stats reports.
type Snapshot struct {
	Sessions int
	Records  int
}

// StatsFunc collects a Snapshot.
type StatsFunc func(ctx context.Context) (Snapshot, error)

// Handlers implements the Telegram side of the conversation.
type Handlers struct {
	machine Machine
	catalog *script.Catalog
	stats   StatsFunc
	// send delivers one reply; replaced in tests.
	send func(c tele.Context, what any, opts ...any) error
}

// New wires the handlers. stats may be nil to omit /stats.
func New(m Machine, catalog *script.Catalog, stats StatsFunc) *Handlers {
	return &Handlers{
		machine: m,
		catalog: catalog,
		stats:   stats,
		send: func(c tele.Context, what any, opts ...any) error {
			return c.Send(what, opts...)
		},
	}
}

// Register adds the commands and the language callback to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	errs := []error{
		reg.RegisterCommand("/start", commands.Command{
			Handler:     h.Start,
			Description: "Начать заявку / So‘rovni boshlash",
			Localized:   map[string]string{"ru": "Начать заявку", "uz": "So‘rovni boshlash"},
		}),
		reg.RegisterCommand("/cancel", commands.Command{
			Handler:     h.Cancel,
			Description: "Отменить / Bekor qilish",
			Localized:   map[string]string{"ru": "Отменить заявку", "uz": "So‘rovni bekor qilish"},
			Aliases:     []string{"/stop"},
		}),
		reg.RegisterCommand("/help", commands.Command{
			Handler:     h.Help,
			Description: "Помощь / Yordam",
			Localized:   map[string]string{"ru": "Помощь", "uz": "Yordam"},
		}),
		reg.RegisterCallback(LanguageCallback, h.Language),
	}
	if h.stats != nil {
		errs = append(errs, reg.RegisterCommand("/stats", commands.Command{
			Handler:     h.Stats,
			Description: "Статистика",
			AdminOnly:   true,
			Hidden:      true,
		}))
	}
	return errors.Join(errs...)
}

// HandleMessage feeds any non-command message to the machine.
func (h *Handlers) HandleMessage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.machine.Handle(ctx, Inbound(c))
	return h.reply(ctx, c, res, err)
}

// Start begins a new form. The command argument (or deep-link payload)
// may name the language.
func (h *Handlers) Start(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	hint := machine.Hint{Locale: Locale(c)}
	if m := c.Message(); m != nil {
		hint.Arg = strings.TrimSpace(m.Payload)
	}
	res, err := h.machine.Start(ctx, ConversationID(c), hint)
	return h.reply(ctx, c, res, err)
}

// Cancel drops the current form without submitting it.
func (h *Handlers) Cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.machine.Abandon(ctx, ConversationID(c))
	return h.reply(ctx, c, res, err)
}

// Language applies a language button press.
func (h *Handlers) Language(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res, err := h.machine.Handle(ctx, machine.Inbound{
		ConversationID: ConversationID(c),
		Kind:           script.KindText,
		Text:           callbacks.CallbackPayload(c),
		Locale:         Locale(c),
	})
	return h.reply(ctx, c, res, err)
}

// Help prints the command overview in the sender's language.
func (h *Handlers) Help(c tele.Context) error {
	l := h.catalog.Default()
	if hinted, ok := lang.ParseLanguageHint("", Locale(c)); ok {
		l = hinted
	}
	return h.send(c, h.catalog.Texts(l).Help)
}

// Stats reports the number of open sessions and stored applications.
func (h *Handlers) Stats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	snap, err := h.stats(ctx)
	if err != nil {
		logger.Error(ctx, component, "stats",
			slog.String("status", "error"),
			slog.String("err", err.Error()),
		)
		return h.send(c, "stats unavailable")
	}
	return h.send(c, fmt.Sprintf("Sessions in progress: %d\nApplications: %d", snap.Sessions, snap.Records))
}

// SlowDown is the rate limiter's notice.
func (h *Handlers) SlowDown(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: SlowDownText})
	}
	return tghelpers.SendText(c, SlowDownText)
}

// reply sends every reply of res in order. The machine error is logged;
// the result still carries a notice for the user.
func (h *Handlers) reply(ctx context.Context, c tele.Context, res machine.Result, err error) error {
	middleware.SetOutcome(c, string(res.Outcome))
	if err != nil {
		logger.Error(ctx, component, "machine",
			slog.String("status", "error"),
			slog.String("outcome", string(res.Outcome)),
			slog.String("err", err.Error()),
		)
	}
	for _, r := range res.Replies {
		var sendErr error
		if markup := Markup(r); markup != nil {
			sendErr = h.send(c, r.Text, markup)
		} else {
			sendErr = h.send(c, r.Text)
		}
		if sendErr != nil {
			return fmt.Errorf("bot: send reply: %w", sendErr)
		}
	}
	return nil
}
