package ledger

import (
	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
)

// SeedBalance is a test helper that registers the account if needed and sets
// its balance on the in-memory ledger, adjusting the total supply so the sum
// invariant still holds.
func SeedBalance(l Ledger, id account.ID, amount balance.Balance) {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()

	key := KeyOf(id)
	rec, exists := mem.accounts[key]
	if !exists {
		mem.storageUsage += AccountStorageBytes
	}
	supply, _ := mem.totalSupply.Sub(rec.amount)
	mem.totalSupply, _ = supply.Add(amount)
	mem.accounts[key] = accountRecord{id: id, amount: amount}
}

// SumBalances adds every balance held by the in-memory ledger.
func SumBalances(l Ledger) balance.Balance {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return balance.Zero
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()

	var total balance.Balance
	for _, rec := range mem.accounts {
		total, _ = total.Add(rec.amount)
	}
	return total
}
