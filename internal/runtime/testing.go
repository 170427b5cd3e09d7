package runtime

import (
	"context"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
)

// EnvBuilder assembles an Env outside the executor so handlers can be
// invoked directly in tests.
type EnvBuilder struct {
	current account.ID
	origin  Origin
	results []PromiseResult
}

// NewEnvBuilder starts from a call made by current to itself with 300 TGas.
func NewEnvBuilder(current account.ID) *EnvBuilder {
	return &EnvBuilder{
		current: current,
		origin: Origin{
			Predecessor: current,
			Signer:      current,
			PrepaidGas:  300 * TGas,
		},
	}
}

func (b *EnvBuilder) Predecessor(id account.ID) *EnvBuilder {
	b.origin.Predecessor = id
	b.origin.Signer = id
	return b
}

func (b *EnvBuilder) AttachedDeposit(amount balance.Balance) *EnvBuilder {
	b.origin.AttachedDeposit = amount
	return b
}

func (b *EnvBuilder) PrepaidGas(g Gas) *EnvBuilder {
	b.origin.PrepaidGas = g
	return b
}

func (b *EnvBuilder) PromiseResults(results ...PromiseResult) *EnvBuilder {
	b.results = append([]PromiseResult(nil), results...)
	return b
}

func (b *EnvBuilder) Build() *Env {
	return newEnv(b.current, b.origin, b.results, nil)
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, from account.ID, call Call) ([]byte, error)

func (f DispatchFunc) Dispatch(ctx context.Context, from account.ID, call Call) ([]byte, error) {
	return f(ctx, from, call)
}
