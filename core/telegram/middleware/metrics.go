package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const countersKey = "formbot.counters"

// Counters describes what a handler did with an update.
type Counters struct {
	Messages int
	Keyboard bool
	// Outcome is set by the handler, e.g. the form step result.
	Outcome string
}

func countersOf(c tele.Context) *Counters {
	if v, ok := c.Get(countersKey).(*Counters); ok && v != nil {
		return v
	}
	v := &Counters{}
	c.Set(countersKey, v)
	return v
}

// CountersFrom returns a snapshot of the counters of c.
func CountersFrom(c tele.Context) Counters {
	if v, ok := c.Get(countersKey).(*Counters); ok && v != nil {
		return *v
	}
	return Counters{}
}

// SetOutcome records the handler outcome for the summary log line.
func SetOutcome(c tele.Context, outcome string) {
	countersOf(c).Outcome = outcome
}

// countingContext counts the messages sent while serving an update.
type countingContext struct {
	tele.Context
	counters *Counters
}

func (m countingContext) count(err error, opts []interface{}) error {
	if err != nil {
		return err
	}
	m.counters.Messages++
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			m.counters.Keyboard = m.counters.Keyboard || (v != nil && v.ReplyMarkup != nil)
		case *tele.ReplyMarkup:
			m.counters.Keyboard = m.counters.Keyboard || v != nil
		}
	}
	return nil
}

func (m countingContext) Send(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Send(what, opts...), opts)
}

func (m countingContext) Reply(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Reply(what, opts...), opts)
}

func (m countingContext) Edit(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Edit(what, opts...), opts)
}

// MessageMetricsMiddleware resets the counters and counts replies.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		counters := &Counters{}
		c.Set(countersKey, counters)
		return next(countingContext{Context: c, counters: counters})
	}
}

// UpdateMetricsMiddleware reports the kind of every incoming update to observe.
func UpdateMetricsMiddleware(observe func(kind string)) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if observe != nil {
				observe(UpdateKind(c))
			}
			return next(c)
		}
	}
}

// UpdateKind names the payload of the current update.
func UpdateKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Query != nil:
		return "inline_query"
	case upd.Message == nil:
		return "other"
	}
	m := upd.Message
	switch {
	case m.Photo != nil:
		return "photo"
	case m.Document != nil:
		return "document"
	case m.Contact != nil:
		return "contact"
	case m.Location != nil:
		return "location"
	case m.Text != "" && m.Text[0] == '/':
		return "command"
	case m.Text != "":
		return "text"
	}
	return "other"
}
