package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
)

// Hint carries what the start trigger says about the language.
type Hint struct {
	// Arg is the start command argument or deep-link payload.
	Arg string
	// Locale is the platform language of the sender.
	Locale string
}

// Start creates a fresh session for id, replacing any previous one, and
// returns the first prompt.
//
// A supported hint fixes the language. An explicit but unsupported argument
// falls back to the default language. With no usable hint the session waits
// for a language choice when prompting is enabled.
func (m *Machine) Start(ctx context.Context, id string, hint Hint) (Result, error) {
	ctx = logger.WithConversation(ctx, id)
	l, ok := lang.ParseLanguageHint(hint.Arg, hint.Locale)
	awaiting := false
	if !ok {
		l = m.catalog.Default()
		awaiting = m.opts.PromptLanguage && strings.TrimSpace(hint.Arg) == ""
	}

	var res Result
	err := m.sessions.WithLock(ctx, id, func(ctx context.Context) error {
		s := session.New(id, l, m.sessions.Now())
		if awaiting {
			s.Language = ""
			s.AwaitingLanguage = true
		}
		if err := m.sessions.Save(ctx, s); err != nil {
			return err
		}
		if awaiting {
			res = Result{
				Outcome: OutcomeStarted,
				Replies: []Reply{{Text: script.ChooseLanguageText, Keyboard: KeyboardLanguage}},
			}
			return nil
		}
		res = Result{
			Outcome: OutcomeStarted,
			Replies: []Reply{m.prompt(l, m.catalog.For(l)[0])},
		}
		return nil
	})
	if err != nil {
		logger.Error(ctx, component, "session.start",
			slog.String("status", "error"),
			slog.String("conversation_id", id),
			slog.String("err", err.Error()),
		)
		return Result{
			Outcome: OutcomeError,
			Replies: []Reply{{Text: m.catalog.Texts(l).Failure}},
		}, fmt.Errorf("machine: start %s: %w", id, err)
	}

	started := l.String()
	if awaiting {
		started = "pending"
	}
	m.opts.Metrics.SessionStarted(started)
	m.opts.Metrics.Outcome(string(res.Outcome))
	logger.Info(ctx, component, "session.start",
		slog.String("status", "ok"),
		slog.String("conversation_id", id),
		slog.String("language", started),
		slog.Bool("hinted", ok),
	)
	return res, nil
}

// Abandon deletes the session of id without emitting a record.
func (m *Machine) Abandon(ctx context.Context, id string) (Result, error) {
	ctx = logger.WithConversation(ctx, id)
	var res Result
	err := m.sessions.WithLock(ctx, id, func(ctx context.Context) error {
		s, err := m.sessions.Load(ctx, id)
		if errors.Is(err, session.ErrNotFound) {
			res = Result{Outcome: OutcomeNoSession, Replies: []Reply{{Text: script.NoSessionText, Keyboard: KeyboardRemove}}}
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.sessions.Delete(ctx, id); err != nil {
			return err
		}
		res = Result{
			Outcome: OutcomeCancelled,
			Replies: []Reply{{Text: m.catalog.Texts(s.Language).Cancelled, Keyboard: KeyboardRemove}},
			Step:    s.Step,
		}
		return nil
	})
	if err != nil {
		return Result{
			Outcome: OutcomeError,
			Replies: []Reply{{Text: m.catalog.Texts(m.catalog.Default()).Failure}},
		}, fmt.Errorf("machine: abandon %s: %w", id, err)
	}
	m.opts.Metrics.Outcome(string(res.Outcome))
	if res.Outcome == OutcomeCancelled {
		logger.Info(ctx, component, "session.abandon",
			slog.String("conversation_id", id),
			slog.Int("step", res.Step),
		)
	}
	return res, nil
}

// Sweep discards every session idle longer than the manager TTL.
func (m *Machine) Sweep(ctx context.Context) (int, error) {
	n, err := m.sessions.Sweep(ctx)
	m.opts.Metrics.SessionsExpired(n)
	if n > 0 || err != nil {
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.Int("removed", n),
		}
		if err != nil {
			attrs = append(attrs, slog.String("err", err.Error()))
		}
		logger.Info(ctx, component, "session.sweep", attrs...)
	}
	return n, err
}
