package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
)

type accountRecord struct {
	id     account.ID
	amount balance.Balance
}

type inMemoryLedger struct {
	mu           sync.RWMutex
	genesis      *Genesis
	accounts     map[Key]accountRecord
	totalSupply  balance.Balance
	storageUsage uint64
}

// NewInMemory creates a concurrency-safe in-memory ledger for tests and
// development.
func NewInMemory() Ledger {
	return &inMemoryLedger{accounts: make(map[Key]accountRecord)}
}

func (l *inMemoryLedger) Initialize(_ context.Context, genesis Genesis) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.genesis != nil {
		return ErrAlreadyInitialized
	}

	g := genesis
	l.genesis = &g
	l.storageUsage = StateStorageBytes + AccountStorageBytes
	l.accounts[KeyOf(g.Owner)] = accountRecord{id: g.Owner, amount: g.TotalSupply}
	l.totalSupply = g.TotalSupply
	return nil
}

func (l *inMemoryLedger) Genesis(_ context.Context) (Genesis, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.genesis == nil {
		return Genesis{}, ErrNotInitialized
	}
	return *l.genesis, nil
}

func (l *inMemoryLedger) Register(_ context.Context, id account.ID, deposit, pricePerByte balance.Balance) (Registration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.genesis == nil {
		return Registration{}, ErrNotInitialized
	}

	key := KeyOf(id)
	if _, exists := l.accounts[key]; exists {
		return Registration{AlreadyRegistered: true, Refund: deposit}, nil
	}

	before := l.storageUsage
	l.accounts[key] = accountRecord{id: id}
	l.storageUsage += AccountStorageBytes

	reg, err := settleRegistration(before, l.storageUsage, deposit, pricePerByte)
	if err != nil {
		delete(l.accounts, key)
		l.storageUsage = before
		return Registration{}, err
	}
	return reg, nil
}

func (l *inMemoryLedger) Unregister(_ context.Context, id account.ID, pricePerByte balance.Balance) (Unregistration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := KeyOf(id)
	rec, exists := l.accounts[key]
	if !exists {
		return Unregistration{}, nil
	}
	if !rec.amount.IsZero() {
		return Unregistration{}, fmt.Errorf("%w: %s holds %s", ErrPositiveBalance, id, rec.amount)
	}

	before := l.storageUsage
	after := before - AccountStorageBytes
	refund, err := StorageCost(before-after, pricePerByte)
	if err != nil {
		return Unregistration{}, err
	}
	delete(l.accounts, key)
	l.storageUsage = after
	return Unregistration{Removed: true, Released: before - after, Refund: refund}, nil
}

func (l *inMemoryLedger) IsRegistered(_ context.Context, id account.ID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.accounts[KeyOf(id)]
	return exists, nil
}

func (l *inMemoryLedger) Deposit(_ context.Context, id account.ID, amount balance.Balance) (balance.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := KeyOf(id)
	rec, exists := l.accounts[key]
	if !exists {
		return balance.Balance{}, fmt.Errorf("%w: %s", ErrAccountNotRegistered, id)
	}
	updated, err := rec.amount.Add(amount)
	if err != nil {
		return balance.Balance{}, fmt.Errorf("%w: balance of %s", ErrOverflow, id)
	}
	supply, err := l.totalSupply.Add(amount)
	if err != nil {
		return balance.Balance{}, fmt.Errorf("%w: total supply", ErrOverflow)
	}

	rec.amount = updated
	l.accounts[key] = rec
	l.totalSupply = supply
	return updated, nil
}

func (l *inMemoryLedger) Withdraw(_ context.Context, id account.ID, amount balance.Balance) (balance.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := KeyOf(id)
	rec, exists := l.accounts[key]
	if !exists {
		return balance.Balance{}, fmt.Errorf("%w: %s", ErrAccountNotRegistered, id)
	}
	updated, err := rec.amount.Sub(amount)
	if err != nil {
		return balance.Balance{}, fmt.Errorf("%w: %s holds %s, requested %s", ErrInsufficientBalance, id, rec.amount, amount)
	}
	supply, err := l.totalSupply.Sub(amount)
	if err != nil {
		return balance.Balance{}, fmt.Errorf("total supply: %w", err)
	}

	rec.amount = updated
	l.accounts[key] = rec
	l.totalSupply = supply
	return updated, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, sender, receiver account.ID, amount balance.Balance) (TransferResult, error) {
	if amount.IsZero() {
		return TransferResult{}, ErrZeroAmount
	}
	if sender == receiver {
		return TransferResult{}, ErrSelfTransfer
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey, toKey := KeyOf(sender), KeyOf(receiver)
	from, ok := l.accounts[fromKey]
	if !ok {
		return TransferResult{}, fmt.Errorf("%w: %s", ErrAccountNotRegistered, sender)
	}
	to, ok := l.accounts[toKey]
	if !ok {
		return TransferResult{}, fmt.Errorf("%w: %s", ErrAccountNotRegistered, receiver)
	}

	fromBalance, err := from.amount.Sub(amount)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%w: %s holds %s, requested %s", ErrInsufficientBalance, sender, from.amount, amount)
	}
	toBalance, err := to.amount.Add(amount)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%w: balance of %s", ErrOverflow, receiver)
	}

	from.amount = fromBalance
	to.amount = toBalance
	l.accounts[fromKey] = from
	l.accounts[toKey] = to

	return TransferResult{SenderBalance: fromBalance, ReceiverBalance: toBalance}, nil
}

func (l *inMemoryLedger) BalanceOf(_ context.Context, id account.ID) (balance.Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[KeyOf(id)].amount, nil
}

func (l *inMemoryLedger) TotalSupply(_ context.Context) (balance.Balance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.genesis == nil {
		return balance.Balance{}, ErrNotInitialized
	}
	return l.totalSupply, nil
}

func (l *inMemoryLedger) StorageUsage(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.storageUsage, nil
}
