package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
)

// SecretTokenHeader carries the webhook secret set via setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	statusText      = "Bot is running!"
	maxUpdateBytes  = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// ServerOptions configures the HTTP endpoint.
type ServerOptions struct {
	Listen string
	Port   int
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server exposes the status page, metrics and the webhook receiver.
type Server struct {
	router chi.Router
	srv    *http.Server
}

// NewServer builds the router. Call MountWebhook before Start to receive
// updates over HTTP.
func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, statusText)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	addr := net.JoinHostPort(opts.Listen, strconv.Itoa(opts.Port))
	return &Server{
		router: r,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// MountWebhook accepts Telegram updates on path and queues them to updates.
// The request is acknowledged as soon as the update is queued. A body that
// does not decode is logged and acknowledged, since redelivery cannot fix
// it. A full queue answers 503 so Telegram redelivers later.
func (s *Server) MountWebhook(path, secret string, updates chan<- tele.Update) {
	s.router.Post(path, func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if secret != "" && r.Header.Get(SecretTokenHeader) != secret {
			logger.Warn(ctx, "http", "webhook.rejected",
				slog.String("reason", "secret_token"),
				slog.String("remote", r.RemoteAddr),
			)
			http.Error(w, "forbidden", http.StatusUnauthorized)
			return
		}

		var upd tele.Update
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
			logger.Warn(ctx, "http", "webhook.decode",
				slog.String("status", "error"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			w.WriteHeader(http.StatusOK)
			return
		}

		select {
		case updates <- upd:
			w.WriteHeader(http.StatusOK)
		default:
			logger.Warn(ctx, "http", "webhook.queue_full",
				slog.Int("update_id", upd.ID),
			)
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}
	})
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.srv.Addr, err)
	}
	logger.Info(ctx, "http", "listen",
		slog.String("listen", s.srv.Addr),
	)

	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
