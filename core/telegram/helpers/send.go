package helpers

import (
	"sync/atomic"

	"github.com/m3rciful/formbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// SendText sends raw text (no parse mode) to the current recipient through
// the dispatcher. Delivery order relative to other messages is not kept, so
// use it for standalone notices only.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	run := func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	}
	return currentDispatcher().Do(BuildContext(c), "send.text", "sendMessage", run)
}
