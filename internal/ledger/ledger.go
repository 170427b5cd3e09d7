package ledger

import (
	"context"
	"errors"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/metadata"
)

var (
	// ErrAccountNotRegistered occurs when an operation references an account
	// that has no storage registration.
	ErrAccountNotRegistered = errors.New("account not registered")

	// ErrInsufficientDeposit occurs when the attached deposit does not cover
	// the storage consumed by a registration.
	ErrInsufficientDeposit = errors.New("insufficient deposit for storage")

	// ErrInsufficientBalance occurs when the source account lacks the
	// requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOverflow occurs when a balance or the total supply would leave the
	// 128-bit range.
	ErrOverflow = errors.New("balance overflow")

	// ErrSelfTransfer rejects transfers whose sender and receiver are equal.
	ErrSelfTransfer = errors.New("sender and receiver must differ")

	// ErrZeroAmount rejects zero-value transfers.
	ErrZeroAmount = errors.New("amount must be positive")

	// ErrPositiveBalance rejects unregistering an account that still holds tokens.
	ErrPositiveBalance = errors.New("cannot unregister an account with a positive balance")

	// ErrAlreadyInitialized occurs when genesis state already exists.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrNotInitialized occurs when an operation runs before genesis.
	ErrNotInitialized = errors.New("ledger not initialized")
)

// Genesis is the state fixed at initialization.
type Genesis struct {
	Owner       account.ID
	TotalSupply balance.Balance
	Metadata    metadata.Metadata
}

// Registration describes the outcome of a storage registration.
type Registration struct {
	AlreadyRegistered bool
	StorageDelta      uint64
	Charged           balance.Balance
	Refund            balance.Balance
}

// Unregistration describes the outcome of removing a registration.
type Unregistration struct {
	Removed  bool
	Released uint64
	Refund   balance.Balance
}

// TransferResult captures balances right after a transfer.
type TransferResult struct {
	SenderBalance   balance.Balance
	ReceiverBalance balance.Balance
}

// Ledger is implemented by the storage backends. Every method is atomic: on
// error no balance, registration or usage counter has changed.
type Ledger interface {
	// Initialize stores genesis, registers the owner without charge and
	// credits it with the total supply.
	Initialize(ctx context.Context, genesis Genesis) error
	Genesis(ctx context.Context) (Genesis, error)

	// Register adds id to the registry. The charge is the storage usage delta
	// measured after the insert multiplied by pricePerByte.
	Register(ctx context.Context, id account.ID, deposit, pricePerByte balance.Balance) (Registration, error)
	// Unregister removes a zero-balance registration and prices the released storage.
	Unregister(ctx context.Context, id account.ID, pricePerByte balance.Balance) (Unregistration, error)
	IsRegistered(ctx context.Context, id account.ID) (bool, error)

	// Deposit mints and Withdraw burns: each changes the account balance and
	// the tracked total supply together so the sum invariant holds. The
	// supply is otherwise fixed at initialization, and no token entry point
	// calls either method; they exist for embedding applications and tests.
	Deposit(ctx context.Context, id account.ID, amount balance.Balance) (balance.Balance, error)
	Withdraw(ctx context.Context, id account.ID, amount balance.Balance) (balance.Balance, error)
	Transfer(ctx context.Context, sender, receiver account.ID, amount balance.Balance) (TransferResult, error)

	// BalanceOf returns zero for unregistered accounts.
	BalanceOf(ctx context.Context, id account.ID) (balance.Balance, error)
	TotalSupply(ctx context.Context) (balance.Balance, error)
	StorageUsage(ctx context.Context) (uint64, error)
}
