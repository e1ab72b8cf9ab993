// Package pairing implements the binding-code exchange.
//
// A LINE group asks for a code, the broker stores it with a fixed TTL, and a
// Discord channel later presents the code to complete the binding:
//  1. Issue generates a 6-digit code for the group (expires after 5 minutes)
//  2. The user runs "/link <code>" in the Discord channel
//  3. Peek resolves the code; the caller checks expiry and binds
//  4. Consume deletes the code (after a successful link or on expiry)
//
// Codes are single use. Unknown and already consumed codes look the same.
package pairing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/linecord/internal/store"
)

const (
	// CodeTTL is how long a binding code remains valid.
	CodeTTL = 300 * time.Second
	// CodeMin and CodeMax bound the 6-digit code range (inclusive).
	CodeMin = 100000
	CodeMax = 999999
	// maxIssueAttempts bounds regeneration when a fresh code collides with
	// another group's pending code.
	maxIssueAttempts = 8
)

// ErrCodeSpace is returned when no free code was found within maxIssueAttempts.
var ErrCodeSpace = errors.New("no free binding code")

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeSource overrides code generation.
func WithCodeSource(gen func() (string, error)) Option {
	return func(s *Service) { s.gen = gen }
}

// Service issues, resolves and consumes binding codes.
type Service struct {
	store store.CodeStore
	now   func() time.Time
	gen   func() (string, error)
	mu    sync.Mutex
}

// NewService creates a broker on top of a code store.
func NewService(cs store.CodeStore, opts ...Option) *Service {
	s := &Service{
		store: cs,
		now:   time.Now,
		gen:   generateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a code for a group, persists it and returns it.
// Callers check beforehand that the group is not already bound.
func (s *Service) Issue(groupID, groupName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.store.LoadCodes()
	if err != nil {
		return "", err
	}
	now := s.now()

	var code string
	for attempt := 0; ; attempt++ {
		if attempt == maxIssueAttempts {
			return "", ErrCodeSpace
		}
		code, err = s.gen()
		if err != nil {
			return "", fmt.Errorf("generate binding code: %w", err)
		}
		prev, taken := codes[code]
		if !taken || prev.Expired(now) || prev.LineGroupID == groupID {
			break
		}
		slog.Warn("binding code collision, regenerating", "line_group_id", groupID)
	}

	codes[code] = store.BindingCode{
		Code:          code,
		LineGroupID:   groupID,
		LineGroupName: groupName,
		Expiration:    now.Add(CodeTTL),
	}
	if err := s.store.SaveCodes(codes); err != nil {
		return "", err
	}

	slog.Info("binding code issued",
		"line_group_id", groupID,
		"expires_at", now.Add(CodeTTL).Format(time.RFC3339),
	)
	return code, nil
}

// Peek returns the pending code or nil when it does not exist.
// Expired codes are returned as is; the caller decides what to do with them.
func (s *Service) Peek(code string) (*store.BindingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.store.LoadCodes()
	if err != nil {
		return nil, err
	}
	bc, ok := codes[code]
	if !ok {
		return nil, nil
	}
	return &bc, nil
}

// Expired reports whether bc is past its TTL on the service clock.
func (s *Service) Expired(bc *store.BindingCode) bool {
	return bc.Expired(s.now())
}

// Consume deletes a code. Unknown codes are ignored.
func (s *Service) Consume(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.store.LoadCodes()
	if err != nil {
		return err
	}
	if _, ok := codes[code]; !ok {
		return nil
	}
	delete(codes, code)
	if err := s.store.SaveCodes(codes); err != nil {
		return err
	}
	slog.Info("binding code consumed")
	return nil
}

// Pending returns all stored codes ordered by expiration, expired ones included.
func (s *Service) Pending() ([]store.BindingCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.store.LoadCodes()
	if err != nil {
		return nil, err
	}
	result := make([]store.BindingCode, 0, len(codes))
	for _, bc := range codes {
		result = append(result, bc)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Expiration.Before(result[j].Expiration)
	})
	return result, nil
}

// PruneExpired deletes every expired code and returns how many were removed.
func (s *Service) PruneExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.store.LoadCodes()
	if err != nil {
		return 0, err
	}
	now := s.now()
	removed := 0
	for code, bc := range codes {
		if bc.Expired(now) {
			delete(codes, code)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.store.SaveCodes(codes); err != nil {
		return 0, err
	}
	return removed, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(CodeMax-CodeMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+CodeMin), nil
}
