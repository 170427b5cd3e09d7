package ledger

import (
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
)

const (
	// recordOverheadBytes is charged for every stored key/value pair.
	recordOverheadBytes = 40
	accountPrefixBytes  = 1
	accountKeyBytes     = 32
	balanceBytes        = 16

	// AccountStorageBytes is the storage consumed by one registration. Keys
	// are hashed, so it does not depend on the account id length.
	AccountStorageBytes = recordOverheadBytes + accountPrefixBytes + accountKeyBytes + balanceBytes

	// StateStorageBytes is the fixed footprint of the genesis record.
	StateStorageBytes = 128
)

// Key is the storage key of an account.
type Key [accountKeyBytes]byte

// KeyOf hashes an account id into its storage key.
func KeyOf(id account.ID) Key {
	return Key(sha3.Sum256([]byte(id)))
}

// StorageCost prices a storage delta.
func StorageCost(bytes uint64, pricePerByte balance.Balance) (balance.Balance, error) {
	cost, err := pricePerByte.MulUint64(bytes)
	if err != nil {
		return balance.Balance{}, fmt.Errorf("price %d bytes: %w", bytes, ErrOverflow)
	}
	return cost, nil
}

// MinStorageBalance is the deposit a single registration requires.
func MinStorageBalance(pricePerByte balance.Balance) (balance.Balance, error) {
	return StorageCost(AccountStorageBytes, pricePerByte)
}

// settleRegistration prices the measured delta against the deposit.
func settleRegistration(before, after uint64, deposit, pricePerByte balance.Balance) (Registration, error) {
	delta := after - before
	cost, err := StorageCost(delta, pricePerByte)
	if err != nil {
		return Registration{}, err
	}
	refund, err := deposit.Sub(cost)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: attached %s, required %s", ErrInsufficientDeposit, deposit, cost)
	}
	return Registration{StorageDelta: delta, Charged: cost, Refund: refund}, nil
}
