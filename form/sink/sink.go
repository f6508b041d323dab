// Package sink hands a completed application to the durable log and to the
// notification chat.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/form/metrics"
	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
)

const component = "form.sink"

// DefaultNotifyTimeout bounds notification delivery when none is configured.
const DefaultNotifyTimeout = 10 * time.Second

// Notification is the rendered application sent to the destination chat.
type Notification struct {
	RecordID    string
	Text        string
	Attachments []session.Attachment
}

// Notifier delivers notifications. Errors are logged by the sink and never
// fail a submit.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Sink implements the submit step of a completed form.
type Sink struct {
	log      record.Log
	notifier Notifier
	catalog  *script.Catalog
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// Option configures the Sink.
type Option func(*Sink)

// WithNotifyTimeout overrides DefaultNotifyTimeout.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records submit outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// New builds a Sink. notifier may be nil, in which case records are only
// logged.
func New(log record.Log, notifier Notifier, catalog *script.Catalog, opts ...Option) *Sink {
	s := &Sink{
		log:      log,
		notifier: notifier,
		catalog:  catalog,
		timeout:  DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit appends r to the log and then notifies. It fails only when the
// append fails.
func (s *Sink) Submit(ctx context.Context, r record.Record) error {
	start := time.Now()
	if err := s.log.Append(ctx, r); err != nil {
		s.metrics.SubmitFailed()
		logger.Error(ctx, component, "record.append",
			slog.String("status", "error"),
			slog.String("record_id", r.ID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("sink: append %s: %w", r.ID, err)
	}
	s.metrics.Submitted(r.Language.String(), time.Since(start))
	logger.Info(ctx, component, "record.append",
		slog.String("status", "ok"),
		slog.String("record_id", r.ID),
		slog.String("conversation_id", r.ConversationID),
		slog.String("language", r.Language.String()),
		slog.Int("answers", len(r.Answers)),
		slog.Int("attachments", len(r.Attachments)),
		slog.Duration("duration", logger.Took(start)),
	)

	s.notify(ctx, r)
	return nil
}

func (s *Sink) notify(ctx context.Context, r record.Record) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n := Notification{
		RecordID:    r.ID,
		Text:        Render(s.catalog, r),
		Attachments: append([]session.Attachment(nil), r.Attachments...),
	}
	if err := s.notifier.Notify(nctx, n); err != nil {
		s.metrics.NotifyFailed()
		logger.Warn(ctx, component, "notify",
			slog.String("status", "error"),
			slog.String("record_id", r.ID),
			slog.String("err", err.Error()),
		)
	}
}
