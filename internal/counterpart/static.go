package counterpart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/runtime"
)

// Outcome selects how the Static counterpart answers.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ErrRequiresOneYocto mirrors the counterpart's own deposit convention.
var ErrRequiresOneYocto = errors.New("requires attached deposit of exactly 1 yoctoNEAR")

// Static simulates a counterpart for development and tests.
type Static struct {
	mu      sync.Mutex
	outcome Outcome
	latency time.Duration
	calls   []Envelope
}

// NewStatic builds a simulated counterpart with the given outcome.
func NewStatic(outcome Outcome, latency time.Duration) *Static {
	if outcome == "" {
		outcome = OutcomeSuccess
	}
	return &Static{outcome: outcome, latency: latency}
}

// SetOutcome switches the answer for subsequent calls.
func (s *Static) SetOutcome(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = outcome
}

// Dispatch records the call and answers according to the configured outcome.
func (s *Static) Dispatch(ctx context.Context, from account.ID, call runtime.Call) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, NewEnvelope(from, call))
	outcome, latency := s.outcome, s.latency
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if call.Method == MethodFtTransfer && !call.Deposit.Equal(balance.One) {
		return nil, ErrRequiresOneYocto
	}
	if outcome == OutcomeFailure {
		return nil, fmt.Errorf("%w: %s simulated failure", ErrRejected, call.Method)
	}
	return []byte("null"), nil
}

// Calls returns the envelopes received so far.
func (s *Static) Calls() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.calls...)
}
