package telegram

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"

	defaultLongPoll = 10 * time.Second
)

// WebhookOptions declares how Telegram reaches the bot. The socket itself is
// owned by Server, so the returned poller only registers the webhook.
type WebhookOptions struct {
	URL         string
	Path        string
	SecretToken string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

// BuildPoller returns a Telebot poller based on provided options.
func BuildPoller(opts PollerOptions) tele.Poller {
	runMode := strings.ToLower(strings.TrimSpace(opts.RunMode))
	if runMode == RunModeWebhook {
		return &tele.Webhook{
			SecretToken: opts.Webhook.SecretToken,
			Endpoint:    &tele.WebhookEndpoint{PublicURL: WebhookURL(opts.Webhook.URL, opts.Webhook.Path)},
		}
	}

	timeout := time.Duration(opts.LongPollTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultLongPoll
	}
	return &tele.LongPoller{Timeout: timeout}
}

// WebhookURL joins the public base URL and the receive path.
func WebhookURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if path == "" {
		return base
	}
	if strings.HasSuffix(base, path) {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}
