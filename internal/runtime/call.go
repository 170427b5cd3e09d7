package runtime

import (
	"context"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
)

// Handler is the body of one message. It runs to completion on the executor
// goroutine; its scheduled actions are dispatched only if it returns nil.
type Handler func(ctx context.Context, env *Env) (any, error)

// Origin describes who submitted a call and what it carries.
type Origin struct {
	Predecessor     account.ID
	Signer          account.ID
	AttachedDeposit balance.Balance
	PrepaidGas      Gas
}

// Call is an outbound cross-service call.
type Call struct {
	Receiver account.ID
	Method   string
	Args     []byte
	Deposit  balance.Balance
	Gas      Gas
}

// Callback is chained to a Call and runs as a new message once the call's
// outcome is known.
type Callback struct {
	Method  string
	Deposit balance.Balance
	Gas     Gas
	Handler Handler
}

// PromiseStatus is the outcome of an outbound call.
type PromiseStatus string

const (
	PromiseSuccessful PromiseStatus = "successful"
	PromiseFailed     PromiseStatus = "failed"
)

// PromiseResult is what a callback observes about its outbound call.
type PromiseResult struct {
	Status PromiseStatus
	Value  []byte
	Reason string
}

// Succeeded reports whether the outbound call completed successfully.
func (r PromiseResult) Succeeded() bool {
	return r.Status == PromiseSuccessful
}

// Dispatcher delivers outbound calls to their receiver.
type Dispatcher interface {
	Dispatch(ctx context.Context, from account.ID, call Call) ([]byte, error)
}

// Refund is a native-token transfer back to a caller.
type Refund struct {
	To     account.ID
	Amount balance.Balance
}

// Outcome is returned to the submitter once a handler committed.
type Outcome struct {
	Value    any
	Receipts []*Receipt
	Refunds  []Refund
	GasUsed  Gas
}
