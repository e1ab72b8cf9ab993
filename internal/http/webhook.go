package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/linecord/internal/channels/line"
	"github.com/nextlevelbuilder/linecord/internal/relay"
)

const maxWebhookBodySize = 1 << 20 // 1MB

// EventSink receives verified LINE events.
type EventSink interface {
	Ready() bool
	HandleLineEvent(ev relay.LineEvent)
}

// ParseFunc verifies and decodes one webhook delivery.
type ParseFunc func(r *http.Request) ([]relay.LineEvent, error)

// LineWebhookHandler handles POST deliveries from the LINE platform.
type LineWebhookHandler struct {
	parse       ParseFunc
	sink        EventSink
	trustProxy  bool
	rateLimiter func(string) bool // rate limit check: key → allowed (nil = no limit)
}

// NewLineWebhookHandler creates the webhook handler.
func NewLineWebhookHandler(parse ParseFunc, sink EventSink, trustProxy bool) *LineWebhookHandler {
	return &LineWebhookHandler{parse: parse, sink: sink, trustProxy: trustProxy}
}

// SetRateLimiter sets the rate limiter function for webhook requests.
func (h *LineWebhookHandler) SetRateLimiter(fn func(string) bool) {
	h.rateLimiter = fn
}

func (h *LineWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.rateLimiter != nil && !h.rateLimiter(clientIP(r, h.trustProxy)) {
		w.Header().Set("Retry-After", "60")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	// Until the registry is loaded LINE retries the delivery later.
	if !h.sink.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	events, err := h.parse(r)
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			slog.Warn("security.line_signature_invalid", "remote", clientIP(r, h.trustProxy))
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		slog.Warn("line webhook: bad request", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	for _, ev := range events {
		h.sink.HandleLineEvent(ev)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
