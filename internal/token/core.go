package token

import (
	"context"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/events"
	"github.com/congo-pay/token_ledger/internal/runtime"
)

// FtTransfer moves amount from the caller to receiverID.
func (s *Service) FtTransfer(ctx context.Context, origin runtime.Origin, receiverID string, amount balance.Balance, memo string) error {
	_, err := s.exec.Execute(ctx, origin, func(ctx context.Context, env *runtime.Env) (any, error) {
		if !env.AttachedDeposit().Equal(balance.One) {
			return nil, ErrRequiresOneYocto
		}
		receiver, err := account.Parse(receiverID)
		if err != nil {
			return nil, err
		}
		sender := env.Predecessor()

		if _, err := s.ledger.Transfer(ctx, sender, receiver, amount); err != nil {
			return nil, err
		}
		s.metrics.IncrementTransfers()

		event := events.NewTransfer(events.Transfer{OldOwnerID: sender, NewOwnerID: receiver, Amount: amount, Memo: memo})
		if err := s.emitter.Emit(ctx, event); err != nil {
			s.logger.Warn("emit transfer event", "error", err)
		}
		return nil, nil
	})
	return err
}
