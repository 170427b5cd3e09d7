package token

import (
	"context"
	"fmt"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/counterpart"
	"github.com/congo-pay/token_ledger/internal/ledger"
	"github.com/congo-pay/token_ledger/internal/metrics"
	"github.com/congo-pay/token_ledger/internal/runtime"
)

const (
	// TransferGas is attached to the outbound ft_transfer.
	TransferGas = 60 * runtime.TGas
	// SettleGas is attached to the on_transfer_settled callback.
	SettleGas = 30 * runtime.TGas

	methodOnTransferSettled = "on_transfer_settled"
)

// TransferAndRegister asks the counterpart to move amount of its own balance
// to recipient and, once that call succeeded, adds recipient to the
// allowlist. Only the owner may call it. The returned receipt resolves to
// true when recipient was allowed and false when the outbound call failed.
//
// Success of the outbound call is trusted as is: neither the amount moved nor
// the recipient's resulting balance are verified.
func (s *Service) TransferAndRegister(ctx context.Context, origin runtime.Origin, recipient string, amount balance.Balance) (*runtime.Receipt, error) {
	out, err := s.exec.Execute(ctx, origin, func(_ context.Context, env *runtime.Env) (any, error) {
		if env.Predecessor() != s.owner {
			return nil, fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, env.Predecessor())
		}
		to, err := account.Parse(recipient)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			return nil, ledger.ErrZeroAmount
		}

		args, err := counterpart.EncodeTransfer(counterpart.TransferArgs{ReceiverID: to, Amount: amount})
		if err != nil {
			return nil, err
		}
		receipt, err := env.Schedule(
			runtime.Call{
				Receiver: s.counterpart,
				Method:   counterpart.MethodFtTransfer,
				Args:     args,
				Deposit:  balance.One,
				Gas:      TransferGas,
			},
			runtime.Callback{
				Method:  methodOnTransferSettled,
				Deposit: balance.Zero,
				Gas:     SettleGas,
				Handler: s.onTransferSettled(recipient),
			},
		)
		if err != nil {
			return nil, err
		}
		env.Log("transfer and register issued", "recipient", to.String(), "amount", amount.String(), "receipt", receipt.ID())
		return receipt, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Value.(*runtime.Receipt), nil
}

// onTransferSettled observes the single outcome of the outbound transfer.
func (s *Service) onTransferSettled(recipient string) runtime.Handler {
	return func(ctx context.Context, env *runtime.Env) (any, error) {
		if env.Predecessor() != env.CurrentAccount() {
			return nil, fmt.Errorf("%w: %s is private", ErrUnauthorized, methodOnTransferSettled)
		}
		to, err := account.Parse(recipient)
		if err != nil {
			s.metrics.ObserveOrchestration(metrics.OutcomeError)
			return nil, err
		}
		if n := env.PromiseResultsCount(); n != 1 {
			s.metrics.ObserveOrchestration(metrics.OutcomeError)
			return nil, fmt.Errorf("%w: got %d", runtime.ErrCallbackResultCountMismatch, n)
		}

		result, err := env.PromiseResult(0)
		if err != nil {
			return nil, err
		}
		if !result.Succeeded() {
			s.metrics.ObserveOrchestration(metrics.OutcomeFailure)
			env.Log("outbound transfer failed", "recipient", to.String(), "reason", result.Reason)
			return false, nil
		}

		inserted, err := s.allowlist.MarkAllowed(ctx, to)
		if err != nil {
			s.metrics.ObserveOrchestration(metrics.OutcomeError)
			return nil, fmt.Errorf("mark %s allowed: %w", to, err)
		}
		s.metrics.ObserveOrchestration(metrics.OutcomeSuccess)
		env.Log("recipient allowed", "recipient", to.String(), "newly_inserted", inserted)
		return true, nil
	}
}
