// Package machine advances form sessions one inbound message at a time.
//
// A session is in one of three situations when a message arrives: waiting
// for a language choice, waiting for the answer to step i, or holding all N
// answers because an earlier submit failed. Every transition is persisted
// before the replies are returned, so the caller sends prompts only for
// state that already survived a crash.
package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/metrics"
	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
)

const component = "form.machine"

// Outcome summarizes what a message did to the session.
type Outcome string

const (
	OutcomeStarted          Outcome = "started"
	OutcomeNoSession        Outcome = "no_session"
	OutcomeLanguageSet      Outcome = "language_set"
	OutcomeAccepted         Outcome = "accepted"
	OutcomeRejected         Outcome = "rejected"
	OutcomeAttachmentStored Outcome = "attachment_stored"
	OutcomeCompleted        Outcome = "completed"
	OutcomeSubmitFailed     Outcome = "submit_failed"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeError            Outcome = "error"
)

// Keyboard selects the reply markup the adapter attaches to a reply.
type Keyboard int

const (
	// KeyboardNone leaves the current markup alone.
	KeyboardNone Keyboard = iota
	// KeyboardLanguage offers one button per supported language.
	KeyboardLanguage
	// KeyboardContact offers a share-phone-number button.
	KeyboardContact
	// KeyboardRemove hides a previously shown reply keyboard.
	KeyboardRemove
)

// Reply is one outbound message to the conversation.
type Reply struct {
	Text     string
	Keyboard Keyboard
	// ContactLabel is the button caption for KeyboardContact.
	ContactLabel string
}

// Inbound is a transport-neutral user message.
type Inbound struct {
	ConversationID string
	Kind           script.InputKind
	// Text holds the message text, the shared phone number of a contact or
	// "lat,lng" of a location.
	Text         string
	AttachmentID string
	// Locale is the platform language of the sender, if known.
	Locale string
}

// Result is returned by every machine operation.
type Result struct {
	Outcome  Outcome
	Replies  []Reply
	RecordID string
	// Step is the active step index after the operation.
	Step int
}

// Submitter receives completed records.
type Submitter interface {
	Submit(ctx context.Context, r record.Record) error
}

// Options tune the machine.
type Options struct {
	// PromptLanguage asks for a language when the start trigger names none.
	PromptLanguage bool
	Metrics        *metrics.Metrics
}

// Machine is safe for concurrent use; messages of one conversation are
// serialized by the session manager.
type Machine struct {
	sessions *session.Manager
	catalog  *script.Catalog
	sink     Submitter
	opts     Options
}

// New wires the machine.
func New(sessions *session.Manager, catalog *script.Catalog, sink Submitter, opts Options) *Machine {
	return &Machine{
		sessions: sessions,
		catalog:  catalog,
		sink:     sink,
		opts:     opts,
	}
}

// Handle applies one inbound message. On error the result still carries a
// failure notice for the user.
func (m *Machine) Handle(ctx context.Context, in Inbound) (Result, error) {
	ctx = logger.WithConversation(ctx, in.ConversationID)
	var res Result
	language := m.fallbackLanguage(in.Locale)

	err := m.sessions.WithLock(ctx, in.ConversationID, func(ctx context.Context) error {
		s, err := m.sessions.Load(ctx, in.ConversationID)
		if err != nil {
			if errors.Is(err, session.ErrExpired) {
				m.opts.Metrics.SessionsExpired(1)
			}
			if errors.Is(err, session.ErrNotFound) {
				res = Result{Outcome: OutcomeNoSession, Replies: []Reply{{Text: script.NoSessionText}}}
				return nil
			}
			return err
		}
		if s.Language != "" {
			language = s.Language
		}

		if s.AwaitingLanguage {
			res, err = m.chooseLanguage(ctx, s, in)
			return err
		}
		steps := m.catalog.For(s.Language)
		if s.Step >= len(steps) {
			res = m.complete(ctx, s)
			return nil
		}
		res, err = m.advance(ctx, s, steps, in)
		return err
	})
	if err != nil {
		logger.Error(ctx, component, "handle",
			slog.String("status", "error"),
			slog.String("conversation_id", in.ConversationID),
			slog.String("kind", string(in.Kind)),
			slog.String("err", err.Error()),
		)
		res = Result{
			Outcome: OutcomeError,
			Replies: []Reply{{Text: m.catalog.Texts(language).Failure}},
		}
		m.opts.Metrics.Outcome(string(res.Outcome))
		return res, fmt.Errorf("machine: handle %s: %w", in.ConversationID, err)
	}
	m.opts.Metrics.Outcome(string(res.Outcome))
	return res, nil
}

func (m *Machine) fallbackLanguage(locale string) lang.Language {
	if l, ok := lang.ParseLanguageHint("", locale); ok {
		return l
	}
	return m.catalog.Default()
}

// prompt renders the question of step with the markup it needs.
func (m *Machine) prompt(l lang.Language, step script.Step) Reply {
	if step.RequestContact {
		return Reply{
			Text:         step.Prompt,
			Keyboard:     KeyboardContact,
			ContactLabel: m.catalog.Texts(l).ContactButton,
		}
	}
	return Reply{Text: step.Prompt, Keyboard: KeyboardRemove}
}

func (m *Machine) chooseLanguage(ctx context.Context, s *session.Session, in Inbound) (Result, error) {
	l, ok := lang.Language(""), false
	if in.Kind == script.KindText {
		l, ok = lang.ParseLanguageHint(in.Text, "")
	}
	if !ok {
		return Result{
			Outcome: OutcomeRejected,
			Replies: []Reply{{Text: script.ChooseLanguageText, Keyboard: KeyboardLanguage}},
		}, nil
	}

	s.Language = l
	s.AwaitingLanguage = false
	if err := m.sessions.Save(ctx, s); err != nil {
		return Result{}, err
	}
	logger.Info(ctx, component, "language.set",
		slog.String("conversation_id", s.ConversationID),
		slog.String("language", l.String()),
	)
	steps := m.catalog.For(l)
	return Result{
		Outcome: OutcomeLanguageSet,
		Replies: []Reply{m.prompt(l, steps[0])},
	}, nil
}

func (m *Machine) advance(ctx context.Context, s *session.Session, steps []script.Step, in Inbound) (Result, error) {
	step := steps[s.Step]
	t := m.catalog.Texts(s.Language)
	reject := func(notice string) Result {
		logger.Debug(ctx, component, "step.rejected",
			slog.String("conversation_id", s.ConversationID),
			slog.String("step", step.Name),
			slog.String("kind", string(in.Kind)),
		)
		return Result{
			Outcome: OutcomeRejected,
			Replies: []Reply{{Text: notice}, m.prompt(s.Language, step)},
			Step:    s.Step,
		}
	}

	if !step.AcceptsKind(in.Kind) {
		if in.Kind.IsAttachment() && in.AttachmentID != "" && m.catalog.HasAttachmentStep(s.Language) {
			s.Attachments = append(s.Attachments, session.Attachment{Kind: in.Kind, FileID: in.AttachmentID})
			if err := m.sessions.Save(ctx, s); err != nil {
				return Result{}, err
			}
			logger.Info(ctx, component, "attachment.stored",
				slog.String("conversation_id", s.ConversationID),
				slog.String("step", step.Name),
				slog.Int("attachments", len(s.Attachments)),
			)
			return Result{
				Outcome: OutcomeAttachmentStored,
				Replies: []Reply{{Text: t.AttachmentSaved}, m.prompt(s.Language, step)},
				Step:    s.Step,
			}, nil
		}
		return reject(t.WrongKind), nil
	}

	value := normalize(in)
	if value == "" {
		return reject(t.WrongKind), nil
	}
	if err := step.Check(in.Kind, value); err != nil {
		notice := step.Invalid
		if notice == "" || errors.Is(err, script.ErrUnsupportedKind) {
			notice = t.WrongKind
		}
		return reject(notice), nil
	}

	s.Answers = append(s.Answers, session.Answer{Step: step.Name, Kind: in.Kind, Value: value})
	if in.Kind.IsAttachment() {
		s.Attachments = append(s.Attachments, session.Attachment{Kind: in.Kind, FileID: value})
	}
	s.Step++
	if err := m.sessions.Save(ctx, s); err != nil {
		return Result{}, err
	}
	logger.Info(ctx, component, "step.accepted",
		slog.String("conversation_id", s.ConversationID),
		slog.String("step", step.Name),
		slog.String("kind", string(in.Kind)),
		slog.Int("next", s.Step),
	)

	if s.Step == len(steps) {
		return m.complete(ctx, s), nil
	}
	return Result{
		Outcome: OutcomeAccepted,
		Replies: []Reply{m.prompt(s.Language, steps[s.Step])},
		Step:    s.Step,
	}, nil
}

// complete submits a session holding every answer. The session has been
// persisted at Step == N beforehand, so a failed submit is retried by the
// next message without asking again.
func (m *Machine) complete(ctx context.Context, s *session.Session) Result {
	t := m.catalog.Texts(s.Language)
	r := record.FromSession(s, m.sessions.Now())

	if err := m.sink.Submit(ctx, r); err != nil {
		logger.Warn(ctx, component, "submit",
			slog.String("status", "error"),
			slog.String("conversation_id", s.ConversationID),
			slog.String("record_id", r.ID),
			slog.String("err", err.Error()),
		)
		return Result{
			Outcome:  OutcomeSubmitFailed,
			Replies:  []Reply{{Text: t.Failure}},
			RecordID: r.ID,
			Step:     s.Step,
		}
	}

	if err := m.sessions.Delete(ctx, s.ConversationID); err != nil {
		// The record is durable and appends are idempotent by id, so a
		// leftover session only costs a repeated notification.
		logger.Warn(ctx, component, "session.delete",
			slog.String("status", "error"),
			slog.String("conversation_id", s.ConversationID),
			slog.String("err", err.Error()),
		)
	}
	logger.Info(ctx, component, "form.completed",
		slog.String("conversation_id", s.ConversationID),
		slog.String("record_id", r.ID),
		slog.String("language", s.Language.String()),
	)
	return Result{
		Outcome:  OutcomeCompleted,
		Replies:  []Reply{{Text: t.Done, Keyboard: KeyboardRemove}},
		RecordID: r.ID,
		Step:     s.Step,
	}
}

func normalize(in Inbound) string {
	if in.Kind.IsAttachment() {
		return in.AttachmentID
	}
	return strings.TrimSpace(in.Text)
}
