package netutil

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"net timeout", timeoutErr{}, "timeout"},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.telegram.org"}, "dns"},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		{"flood", tele.FloodError{RetryAfter: 3}, "flood"},
		{"server", &tele.Error{Code: 502, Description: "Bad Gateway"}, "http_5xx"},
		{"rendered code", errors.New("telegram: bad request (400)"), "http_4xx"},
		{"plain", errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	d, ok := RetryAfter(tele.FloodError{RetryAfter: 7})
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	_, ok = RetryAfter(errors.New("boom"))
	assert.False(t, ok)
}

func TestRedactToken(t *testing.T) {
	msg := `Post "https://api.telegram.org/bot123456:AAH-secret_token/sendMessage": EOF`
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`, RedactToken(msg))
}
