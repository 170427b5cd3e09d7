package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/ledger"
	"github.com/congo-pay/token_ledger/internal/runtime"
)

// StorageBalance is the storage deposit held for an account. Registrations
// cost a fixed amount, so nothing is ever available for withdrawal.
type StorageBalance struct {
	Total     balance.Balance `json:"total"`
	Available balance.Balance `json:"available"`
}

// StorageBounds are the minimum and maximum storage deposits.
type StorageBounds struct {
	Min balance.Balance `json:"min"`
	Max balance.Balance `json:"max"`
}

// StorageBalanceBounds reports the deposit one registration needs.
func (s *Service) StorageBalanceBounds() (StorageBounds, error) {
	minimum, err := ledger.MinStorageBalance(s.price)
	if err != nil {
		return StorageBounds{}, err
	}
	return StorageBounds{Min: minimum, Max: minimum}, nil
}

// StorageBalanceOf returns nil when id is not registered.
func (s *Service) StorageBalanceOf(ctx context.Context, id string) (*StorageBalance, error) {
	acct, err := account.Parse(id)
	if err != nil {
		return nil, err
	}
	registered, err := s.ledger.IsRegistered(ctx, acct)
	if err != nil || !registered {
		return nil, err
	}
	minimum, err := ledger.MinStorageBalance(s.price)
	if err != nil {
		return nil, err
	}
	return &StorageBalance{Total: minimum, Available: balance.Zero}, nil
}

// StorageDeposit registers accountID, or the caller when accountID is empty,
// paying with the attached deposit. Already registered accounts get the whole
// deposit back; otherwise the surplus over the storage cost is refunded.
// registrationOnly is accepted for interface compatibility: the storage
// balance never exceeds the minimum, so it changes nothing.
func (s *Service) StorageDeposit(ctx context.Context, origin runtime.Origin, accountID string, registrationOnly bool) (StorageBalance, error) {
	out, err := s.exec.Execute(ctx, origin, func(ctx context.Context, env *runtime.Env) (any, error) {
		target := env.Predecessor()
		if accountID != "" {
			parsed, err := account.Parse(accountID)
			if err != nil {
				return nil, err
			}
			target = parsed
		}

		minimum, err := ledger.MinStorageBalance(s.price)
		if err != nil {
			return nil, err
		}

		reg, err := s.ledger.Register(ctx, target, env.AttachedDeposit(), s.price)
		switch {
		case errors.Is(err, ledger.ErrInsufficientDeposit):
			s.metrics.ObserveRegistration("insufficient_deposit")
			return nil, err
		case err != nil:
			return nil, err
		}

		env.Refund(env.Predecessor(), reg.Refund)
		if reg.AlreadyRegistered {
			s.metrics.ObserveRegistration("existing")
			env.Log("account already registered, refunding deposit", "account_id", target.String(), "refund", reg.Refund.String())
		} else {
			s.metrics.ObserveRegistration("created")
			env.Log("account registered", "account_id", target.String(),
				"storage_bytes", reg.StorageDelta, "charged", reg.Charged.String(), "registration_only", registrationOnly)
		}
		return StorageBalance{Total: minimum, Available: balance.Zero}, nil
	})
	if err != nil {
		return StorageBalance{}, err
	}
	return out.Value.(StorageBalance), nil
}

// StorageUnregister removes the caller's registration and refunds its storage
// deposit plus the attached yocto. It returns false when the caller was not
// registered. Accounts holding tokens cannot be removed, force or not.
func (s *Service) StorageUnregister(ctx context.Context, origin runtime.Origin, force bool) (bool, error) {
	out, err := s.exec.Execute(ctx, origin, func(ctx context.Context, env *runtime.Env) (any, error) {
		if !env.AttachedDeposit().Equal(balance.One) {
			return nil, ErrRequiresOneYocto
		}
		caller := env.Predecessor()

		res, err := s.ledger.Unregister(ctx, caller, s.price)
		if err != nil {
			if force && errors.Is(err, ledger.ErrPositiveBalance) {
				return nil, fmt.Errorf("force unregister is not supported: %w", err)
			}
			return nil, err
		}
		if !res.Removed {
			env.Log("account is not registered", "account_id", caller.String())
			return false, nil
		}

		refund, err := res.Refund.Add(balance.One)
		if err != nil {
			return nil, err
		}
		env.Refund(caller, refund)
		env.Log("account closed", "account_id", caller.String(), "released_bytes", res.Released)
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return out.Value.(bool), nil
}
