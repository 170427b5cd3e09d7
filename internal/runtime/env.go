package runtime

import (
	"fmt"
	"log/slog"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
)

type scheduled struct {
	call     Call
	callback Callback
	receipt  *Receipt
}

// Env is the execution context handed to a Handler. It is only valid for the
// duration of that handler.
type Env struct {
	origin  Origin
	current account.ID
	results []PromiseResult
	used    Gas
	logger  *slog.Logger

	pending []scheduled
	refunds []Refund
}

func newEnv(current account.ID, origin Origin, results []PromiseResult, logger *slog.Logger) *Env {
	return &Env{
		origin:  origin,
		current: current,
		results: results,
		used:    CallBaseGas,
		logger:  logger,
	}
}

func (e *Env) Predecessor() account.ID {
	return e.origin.Predecessor
}

func (e *Env) Signer() account.ID {
	return e.origin.Signer
}

func (e *Env) CurrentAccount() account.ID {
	return e.current
}

func (e *Env) AttachedDeposit() balance.Balance {
	return e.origin.AttachedDeposit
}

func (e *Env) PrepaidGas() Gas {
	return e.origin.PrepaidGas
}

func (e *Env) UsedGas() Gas {
	return e.used
}

func (e *Env) PromiseResultsCount() int {
	return len(e.results)
}

// PromiseResult returns the i-th result of the calls this callback was chained to.
func (e *Env) PromiseResult(i int) (PromiseResult, error) {
	if i < 0 || i >= len(e.results) {
		return PromiseResult{}, fmt.Errorf("%w: %d of %d", ErrPromiseResultIndex, i, len(e.results))
	}
	return e.results[i], nil
}

// Schedule queues an outbound call and the callback that observes it. Both
// gas allowances plus one receipt base cost each are reserved immediately.
func (e *Env) Schedule(call Call, callback Callback) (*Receipt, error) {
	need := call.Gas + callback.Gas + 2*ReceiptBaseGas
	if e.used+need > e.origin.PrepaidGas {
		return nil, fmt.Errorf("%w: used %s, scheduling needs %s, prepaid %s",
			ErrExceededPrepaidGas, e.used, need, e.origin.PrepaidGas)
	}
	e.used += need

	receipt := newReceipt(call.Receiver, call.Method, callback.Method)
	e.pending = append(e.pending, scheduled{call: call, callback: callback, receipt: receipt})
	return receipt, nil
}

// Refund records a native-token transfer that is released when the handler commits.
func (e *Env) Refund(to account.ID, amount balance.Balance) {
	if amount.IsZero() {
		return
	}
	e.refunds = append(e.refunds, Refund{To: to, Amount: amount})
}

// Refunds lists the refunds recorded so far.
func (e *Env) Refunds() []Refund {
	return append([]Refund(nil), e.refunds...)
}

// Scheduled lists the calls queued so far, mostly for tests.
func (e *Env) Scheduled() []Call {
	calls := make([]Call, 0, len(e.pending))
	for _, p := range e.pending {
		calls = append(calls, p.call)
	}
	return calls
}

// Log writes a line attributed to the current account.
func (e *Env) Log(msg string, attrs ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg, append([]any{"account", e.current.String()}, attrs...)...)
}
