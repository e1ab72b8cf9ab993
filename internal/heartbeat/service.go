// Package heartbeat keeps a hosted instance awake by periodically requesting
// its own public URL. Platforms that idle out services without inbound
// traffic would otherwise stop the webhook receiver.
package heartbeat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	defaultInterval   = 14 * time.Minute
	defaultRetryDelay = 60 * time.Second
	requestTimeout    = 30 * time.Second
)

// Config holds resolved runtime config for the keep-alive service.
type Config struct {
	URL        string
	Interval   time.Duration
	RetryDelay time.Duration // delay before the next ping after a failure
	Client     *http.Client
}

// Service manages the periodic ping loop.
type Service struct {
	cfg     Config
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	pings   int
	fails   int
}

// NewService creates a keep-alive service.
func NewService(cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: requestTimeout}
	}
	return &Service{cfg: cfg}
}

// Start begins the ping loop in a background goroutine.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	slog.Info("keep-alive started", "url", s.cfg.URL, "interval", s.cfg.Interval)
}

// Stop halts the ping loop and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	slog.Info("keep-alive stopped")
}

// IsRunning returns whether the ping loop is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns the number of successful and failed pings.
func (s *Service) Stats() (pings, fails int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings, s.fails
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	// The first ping waits one full interval; the process just started serving.
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			next := s.cfg.Interval
			if err := s.ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("keep-alive ping failed", "url", s.cfg.URL, "error", err, "retry_in", s.cfg.RetryDelay)
				next = s.cfg.RetryDelay
			}
			timer.Reset(next)
		}
	}
}

func (s *Service) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		s.record(false)
		return err
	}
	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		s.record(false)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		s.record(false)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	s.record(true)
	slog.Debug("keep-alive ping", "url", s.cfg.URL, "status", resp.StatusCode)
	return nil
}

func (s *Service) record(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.pings++
	} else {
		s.fails++
	}
}
