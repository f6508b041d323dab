package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	dialTimeout       = 5 * time.Second
	tlsHandshake      = 5 * time.Second
	idleConnTimeout   = 90 * time.Second
	keepAliveInterval = 30 * time.Second
	// responseSlack is added to the long-poll window before a request is
	// considered hung.
	responseSlack  = 10 * time.Second
	dialRetries    = 2
	dialRetryDelay = 500 * time.Millisecond
)

// BuildHTTPClient returns an HTTP client for Telegram API calls. Response
// timeouts cover a getUpdates call that waits longPoll for updates.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	if longPoll < 0 {
		longPoll = 0
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshake,
		ResponseHeaderTimeout: longPoll + responseSlack,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: longPoll + 2*responseSlack,
		Transport: &dialRetryTransport{
			base:    transport,
			retries: dialRetries,
			delay:   dialRetryDelay,
		},
	}
}

// dialRetryTransport repeats a request only when the connection could not
// be established, so the API never sees a request twice. Everything else is
// left to the sender dispatcher.
type dialRetryTransport struct {
	base    http.RoundTripper
	retries int
	delay   time.Duration
}

func (t *dialRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		currReq := req
		if attempt > 0 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			}
		}

		resp, err := t.base.RoundTrip(currReq)
		if err == nil || attempt >= t.retries || !isDialError(err) {
			return resp, err
		}
		if req.Body != nil && req.GetBody == nil {
			return nil, err
		}

		timer := time.NewTimer(t.delay * time.Duration(attempt+1))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
