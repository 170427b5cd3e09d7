package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/metadata"
)

const uniqueViolation = "23505"

// PostgresLedger persists token state in PostgreSQL. Every operation runs in
// a single transaction that locks the token_state row first, so concurrent
// calls are serialized the same way the in-memory ledger serializes them.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

type stateRow struct {
	totalSupply  balance.Balance
	storageUsage uint64
}

func (l *PostgresLedger) Initialize(ctx context.Context, genesis Genesis) error {
	meta, err := json.Marshal(genesis.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	const insertState = `
        INSERT INTO token_state (id, owner_id, initial_supply, total_supply, storage_usage, metadata)
        VALUES (1, $1, $2::numeric, $2::numeric, $3, $4)`
	if _, err := tx.Exec(ctx, insertState, genesis.Owner.String(), genesis.TotalSupply.String(),
		int64(StateStorageBytes+AccountStorageBytes), meta); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyInitialized
		}
		return err
	}

	key := KeyOf(genesis.Owner)
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_accounts (account_key, account_id, balance) VALUES ($1, $2, $3::numeric)`,
		key[:], genesis.Owner.String(), genesis.TotalSupply.String()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (l *PostgresLedger) Genesis(ctx context.Context) (Genesis, error) {
	const query = `SELECT owner_id, initial_supply::text, metadata FROM token_state WHERE id = 1`
	var owner, supply string
	var meta []byte
	if err := l.db.QueryRow(ctx, query).Scan(&owner, &supply, &meta); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Genesis{}, ErrNotInitialized
		}
		return Genesis{}, err
	}

	g := Genesis{Owner: account.ID(owner)}
	var err error
	if g.TotalSupply, err = balance.Parse(supply); err != nil {
		return Genesis{}, fmt.Errorf("decode initial supply: %w", err)
	}
	var md metadata.Metadata
	if err := json.Unmarshal(meta, &md); err != nil {
		return Genesis{}, fmt.Errorf("decode metadata: %w", err)
	}
	g.Metadata = md
	return g, nil
}

func (l *PostgresLedger) Register(ctx context.Context, id account.ID, deposit, pricePerByte balance.Balance) (Registration, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Registration{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	state, err := lockState(ctx, tx)
	if err != nil {
		return Registration{}, err
	}

	key := KeyOf(id)
	tag, err := tx.Exec(ctx, `INSERT INTO ledger_accounts (account_key, account_id, balance) VALUES ($1, $2, 0)
        ON CONFLICT (account_key) DO NOTHING`, key[:], id.String())
	if err != nil {
		return Registration{}, err
	}
	if tag.RowsAffected() == 0 {
		return Registration{AlreadyRegistered: true, Refund: deposit}, nil
	}

	after := state.storageUsage + AccountStorageBytes
	reg, err := settleRegistration(state.storageUsage, after, deposit, pricePerByte)
	if err != nil {
		return Registration{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE token_state SET storage_usage = $1 WHERE id = 1`, int64(after)); err != nil {
		return Registration{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Registration{}, err
	}
	return reg, nil
}

func (l *PostgresLedger) Unregister(ctx context.Context, id account.ID, pricePerByte balance.Balance) (Unregistration, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Unregistration{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	state, err := lockState(ctx, tx)
	if err != nil {
		return Unregistration{}, err
	}

	key := KeyOf(id)
	current, err := lockBalance(ctx, tx, key)
	if errors.Is(err, ErrAccountNotRegistered) {
		return Unregistration{}, nil
	}
	if err != nil {
		return Unregistration{}, err
	}
	if !current.IsZero() {
		return Unregistration{}, fmt.Errorf("%w: %s holds %s", ErrPositiveBalance, id, current)
	}

	refund, err := StorageCost(AccountStorageBytes, pricePerByte)
	if err != nil {
		return Unregistration{}, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM ledger_accounts WHERE account_key = $1`, key[:]); err != nil {
		return Unregistration{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE token_state SET storage_usage = $1 WHERE id = 1`,
		int64(state.storageUsage-AccountStorageBytes)); err != nil {
		return Unregistration{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Unregistration{}, err
	}
	return Unregistration{Removed: true, Released: AccountStorageBytes, Refund: refund}, nil
}

func (l *PostgresLedger) IsRegistered(ctx context.Context, id account.ID) (bool, error) {
	key := KeyOf(id)
	var exists bool
	err := l.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_accounts WHERE account_key = $1)`, key[:]).Scan(&exists)
	return exists, err
}

func (l *PostgresLedger) Deposit(ctx context.Context, id account.ID, amount balance.Balance) (balance.Balance, error) {
	return l.adjust(ctx, id, amount, true)
}

func (l *PostgresLedger) Withdraw(ctx context.Context, id account.ID, amount balance.Balance) (balance.Balance, error) {
	return l.adjust(ctx, id, amount, false)
}

func (l *PostgresLedger) adjust(ctx context.Context, id account.ID, amount balance.Balance, credit bool) (balance.Balance, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return balance.Balance{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	state, err := lockState(ctx, tx)
	if err != nil {
		return balance.Balance{}, err
	}
	key := KeyOf(id)
	current, err := lockBalance(ctx, tx, key)
	if err != nil {
		return balance.Balance{}, fmt.Errorf("%w: %s", err, id)
	}

	var updated, supply balance.Balance
	if credit {
		if updated, err = current.Add(amount); err != nil {
			return balance.Balance{}, fmt.Errorf("%w: balance of %s", ErrOverflow, id)
		}
		if supply, err = state.totalSupply.Add(amount); err != nil {
			return balance.Balance{}, fmt.Errorf("%w: total supply", ErrOverflow)
		}
	} else {
		if updated, err = current.Sub(amount); err != nil {
			return balance.Balance{}, fmt.Errorf("%w: %s holds %s, requested %s", ErrInsufficientBalance, id, current, amount)
		}
		if supply, err = state.totalSupply.Sub(amount); err != nil {
			return balance.Balance{}, fmt.Errorf("total supply: %w", err)
		}
	}

	if err := storeBalance(ctx, tx, key, updated); err != nil {
		return balance.Balance{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE token_state SET total_supply = $1::numeric WHERE id = 1`, supply.String()); err != nil {
		return balance.Balance{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return balance.Balance{}, err
	}
	return updated, nil
}

// Transfer records a balanced movement between two registered accounts.
func (l *PostgresLedger) Transfer(ctx context.Context, sender, receiver account.ID, amount balance.Balance) (TransferResult, error) {
	if amount.IsZero() {
		return TransferResult{}, ErrZeroAmount
	}
	if sender == receiver {
		return TransferResult{}, ErrSelfTransfer
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := lockState(ctx, tx); err != nil {
		return TransferResult{}, err
	}

	fromKey, toKey := KeyOf(sender), KeyOf(receiver)
	from, err := lockBalance(ctx, tx, fromKey)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%w: %s", err, sender)
	}
	to, err := lockBalance(ctx, tx, toKey)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%w: %s", err, receiver)
	}

	fromBalance, err := from.Sub(amount)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%w: %s holds %s, requested %s", ErrInsufficientBalance, sender, from, amount)
	}
	toBalance, err := to.Add(amount)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%w: balance of %s", ErrOverflow, receiver)
	}

	if err := storeBalance(ctx, tx, fromKey, fromBalance); err != nil {
		return TransferResult{}, err
	}
	if err := storeBalance(ctx, tx, toKey, toBalance); err != nil {
		return TransferResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{SenderBalance: fromBalance, ReceiverBalance: toBalance}, nil
}

func (l *PostgresLedger) BalanceOf(ctx context.Context, id account.ID) (balance.Balance, error) {
	key := KeyOf(id)
	var raw string
	err := l.db.QueryRow(ctx, `SELECT balance::text FROM ledger_accounts WHERE account_key = $1`, key[:]).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return balance.Zero, nil
	}
	if err != nil {
		return balance.Balance{}, err
	}
	return balance.Parse(raw)
}

func (l *PostgresLedger) TotalSupply(ctx context.Context) (balance.Balance, error) {
	var raw string
	err := l.db.QueryRow(ctx, `SELECT total_supply::text FROM token_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return balance.Balance{}, ErrNotInitialized
	}
	if err != nil {
		return balance.Balance{}, err
	}
	return balance.Parse(raw)
}

func (l *PostgresLedger) StorageUsage(ctx context.Context) (uint64, error) {
	var usage int64
	err := l.db.QueryRow(ctx, `SELECT storage_usage FROM token_state WHERE id = 1`).Scan(&usage)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(usage), nil
}

func lockState(ctx context.Context, tx pgx.Tx) (stateRow, error) {
	const query = `SELECT total_supply::text, storage_usage FROM token_state WHERE id = 1 FOR UPDATE`
	var supply string
	var usage int64
	if err := tx.QueryRow(ctx, query).Scan(&supply, &usage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stateRow{}, ErrNotInitialized
		}
		return stateRow{}, err
	}
	total, err := balance.Parse(supply)
	if err != nil {
		return stateRow{}, fmt.Errorf("decode total supply: %w", err)
	}
	return stateRow{totalSupply: total, storageUsage: uint64(usage)}, nil
}

func lockBalance(ctx context.Context, tx pgx.Tx, key Key) (balance.Balance, error) {
	const query = `SELECT balance::text FROM ledger_accounts WHERE account_key = $1 FOR UPDATE`
	var raw string
	if err := tx.QueryRow(ctx, query, key[:]).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balance.Balance{}, ErrAccountNotRegistered
		}
		return balance.Balance{}, err
	}
	return balance.Parse(raw)
}

func storeBalance(ctx context.Context, tx pgx.Tx, key Key, amount balance.Balance) error {
	_, err := tx.Exec(ctx, `UPDATE ledger_accounts SET balance = $1::numeric WHERE account_key = $2`, amount.String(), key[:])
	return err
}
