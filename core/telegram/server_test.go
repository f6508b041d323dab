package telegram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerStatusEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "formbot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(ServerOptions{Listen: "127.0.0.1", Port: 10000, Gatherer: reg})
	assert.Equal(t, "127.0.0.1:10000", s.Addr())

	rec := do(t, s.Handler(), http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bot is running!", rec.Body.String())

	rec = do(t, s.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "formbot_test_total 1")
}

func TestServerWithoutMetrics(t *testing.T) {
	s := NewServer(ServerOptions{Port: 1})
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookQueuesUpdate(t *testing.T) {
	updates := make(chan tele.Update, 1)
	s := NewServer(ServerOptions{Port: 1})
	s.MountWebhook("/webhook", "s3cret", updates)

	body := `{"update_id":7,"message":{"message_id":1,"text":"hi","chat":{"id":42,"type":"private"}}}`
	rec := do(t, s.Handler(), http.MethodPost, "/webhook", body, map[string]string{SecretTokenHeader: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	upd := <-updates
	assert.Equal(t, 7, upd.ID)
	require.NotNil(t, upd.Message)
	assert.Equal(t, "hi", upd.Message.Text)
	assert.Equal(t, int64(42), upd.Message.Chat.ID)
}

func TestWebhookRejects(t *testing.T) {
	updates := make(chan tele.Update, 1)
	s := NewServer(ServerOptions{Port: 1})
	s.MountWebhook("/webhook", "s3cret", updates)

	rec := do(t, s.Handler(), http.MethodPost, "/webhook", `{"update_id":1}`, map[string]string{SecretTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/webhook", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, updates)
}

func TestWebhookAcknowledgesUndecodableBody(t *testing.T) {
	updates := make(chan tele.Update, 1)
	s := NewServer(ServerOptions{Port: 1})
	s.MountWebhook("/webhook", "s3cret", updates)

	rec := do(t, s.Handler(), http.MethodPost, "/webhook", `{not json`, map[string]string{SecretTokenHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, updates)
}

func TestWebhookQueueFull(t *testing.T) {
	updates := make(chan tele.Update)
	s := NewServer(ServerOptions{Port: 1})
	s.MountWebhook("/webhook", "", updates)

	rec := do(t, s.Handler(), http.MethodPost, "/webhook", `{"update_id":2}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
