package bot

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/telegram/sender"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/sink"
)

// NotifyAction tags notification jobs in the dispatcher.
const NotifyAction = "notify.application"

// API is the part of *tele.Bot the notifier sends with.
type API interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// Notifier posts finished applications to a group chat: the rendered text
// first, then every attachment captioned with the record id.
type Notifier struct {
	api        API
	chat       tele.ChatID
	dispatcher *sender.Dispatcher
}

// NewNotifier delivers through dispatcher, or synchronously when it is nil.
func NewNotifier(api API, chatID int64, dispatcher *sender.Dispatcher) (*Notifier, error) {
	if api == nil {
		return nil, errors.New("bot: notifier api must not be nil")
	}
	if chatID == 0 {
		return nil, errors.New("bot: notifier chat id must not be zero")
	}
	return &Notifier{api: api, chat: tele.ChatID(chatID), dispatcher: dispatcher}, nil
}

var _ sink.Notifier = (*Notifier)(nil)

// Notify queues delivery of n. The job outlives ctx's cancellation so the
// sink's timeout covers queueing only.
func (n *Notifier) Notify(ctx context.Context, note sink.Notification) error {
	jobCtx := context.WithoutCancel(ctx)
	return n.dispatcher.Do(jobCtx, NotifyAction, "sendMessage", n.job(note))
}

// job returns an idempotent delivery step. A retry resumes at the first
// part that was not sent.
func (n *Notifier) job(note sink.Notification) func() error {
	parts := make([]any, 0, 1+len(note.Attachments))
	parts = append(parts, note.Text)
	caption := "#" + note.RecordID
	for _, a := range note.Attachments {
		switch a.Kind {
		case script.KindPhoto:
			parts = append(parts, &tele.Photo{File: tele.File{FileID: a.FileID}, Caption: caption})
		case script.KindDocument:
			parts = append(parts, &tele.Document{File: tele.File{FileID: a.FileID}, Caption: caption})
		}
	}

	sent := 0
	return func() error {
		for sent < len(parts) {
			if _, err := n.api.Send(n.chat, parts[sent]); err != nil {
				return fmt.Errorf("bot: notify %s part %d/%d: %w", note.RecordID, sent+1, len(parts), err)
			}
			sent++
		}
		return nil
	}
}
