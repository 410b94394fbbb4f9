package sync

import (
	"context"
	"sync"
	"time"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
)

// session is the per-account worker handle. One goroutine owns the pass loop;
// everything else talks to it through the 1-buffered trigger channel, which is
// what coalesces bursts of triggers into a single pass.
type session struct {
	config    interfaces.SessionConfig
	cancel    context.CancelFunc
	done      chan struct{}
	triggerCh chan struct{}

	mu                  sync.Mutex
	state               enum.SessionState
	lastTriggeredAt     time.Time
	lastError           string
	consecutiveFailures int
	pushChannelID       string
	parked              bool
	passing             bool
}

func newSession(config interfaces.SessionConfig, cancel context.CancelFunc) *session {
	return &session{
		config:    config,
		cancel:    cancel,
		done:      make(chan struct{}),
		triggerCh: make(chan struct{}, 1),
		state:     enum.SessionStarting,
	}
}

// trigger requests one pass; returns false when a pass is already pending or
// the session no longer accepts work.
func (s *session) trigger() bool {
	s.mu.Lock()
	// A trigger landing while a pass runs folds into that pass; it never
	// queues a second one
	blocked := s.parked || s.passing || s.state == enum.SessionStopping || s.state == enum.SessionStopped
	s.mu.Unlock()
	if blocked {
		return false
	}
	select {
	case s.triggerCh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *session) beginPass() {
	s.mu.Lock()
	s.passing = true
	s.mu.Unlock()
	// absorb a trigger that raced in before the pass started
	select {
	case <-s.triggerCh:
	default:
	}
}

func (s *session) endPass() {
	s.mu.Lock()
	s.passing = false
	s.mu.Unlock()
}

func (s *session) getState() enum.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(state enum.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *session) setPushChannelID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushChannelID = id
}

func (s *session) getPushChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushChannelID
}

func (s *session) park() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parked = true
	s.state = enum.SessionDegraded
}

func (s *session) isParked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parked
}

func (s *session) markTriggered(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTriggeredAt = at
}

func (s *session) recordSuccess(steadyState enum.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	s.lastError = ""
	s.state = steadyState
}

func (s *session) recordFailure(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	s.lastError = err.Error()
	return s.consecutiveFailures
}

func (s *session) status() interfaces.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return interfaces.SessionStatus{
		AccountID:           s.config.AccountID,
		Provider:            s.config.Provider,
		State:               s.state,
		LastTriggeredAt:     s.lastTriggeredAt,
		LastError:           s.lastError,
		ConsecutiveFailures: s.consecutiveFailures,
	}
}
