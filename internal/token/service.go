package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/allowlist"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/events"
	"github.com/congo-pay/token_ledger/internal/ledger"
	"github.com/congo-pay/token_ledger/internal/metadata"
	"github.com/congo-pay/token_ledger/internal/metrics"
	"github.com/congo-pay/token_ledger/internal/runtime"
)

// MintMemo accompanies the ft_mint event emitted at initialization.
const MintMemo = "Initial tokens supply is minted"

var (
	// ErrUnauthorized rejects callers other than the controlling identity.
	ErrUnauthorized = errors.New("unauthorized caller")

	// ErrRequiresOneYocto rejects calls that must carry exactly one yocto.
	ErrRequiresOneYocto = errors.New("requires attached deposit of exactly 1 yoctoNEAR")
)

// Params describe a token instance.
type Params struct {
	// Contract is the account the service executes as.
	Contract account.ID
	Owner    account.ID
	// Counterpart receives the outbound transfers issued by
	// TransferAndRegister. Defaults to Owner.
	Counterpart      account.ID
	TotalSupply      balance.Balance
	Metadata         metadata.Metadata
	StorageBytePrice balance.Balance
}

// Deps are the collaborators of a Service.
type Deps struct {
	Ledger    ledger.Ledger
	Allowlist allowlist.Store
	Executor  *runtime.Executor
	Emitter   events.Emitter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Service is one token instance. State-mutating entry points run on the
// executor; views read the backends directly.
type Service struct {
	contract    account.ID
	owner       account.ID
	counterpart account.ID
	meta        metadata.Metadata
	price       balance.Balance

	ledger    ledger.Ledger
	allowlist allowlist.Store
	exec      *runtime.Executor
	emitter   events.Emitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Initialize creates the token: it registers the owner, credits the whole
// supply to it and emits ft_mint. A second call against the same ledger
// fails with ledger.ErrAlreadyInitialized.
func Initialize(ctx context.Context, p Params, d Deps) (*Service, error) {
	if err := account.Validate(p.Owner.String()); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if err := p.Metadata.Validate(); err != nil {
		return nil, err
	}
	s, err := newService(p, d)
	if err != nil {
		return nil, err
	}

	err = d.Ledger.Initialize(ctx, ledger.Genesis{Owner: p.Owner, TotalSupply: p.TotalSupply, Metadata: p.Metadata})
	if err != nil {
		return nil, err
	}

	mint := events.NewMint(events.Mint{OwnerID: p.Owner, Amount: p.TotalSupply, Memo: MintMemo})
	if err := s.emitter.Emit(ctx, mint); err != nil {
		s.logger.Warn("emit mint event", "error", err)
	}
	s.logger.Info("token initialized", "owner", p.Owner.String(), "total_supply", p.TotalSupply.String())
	return s, nil
}

// Open attaches to a token that was initialized earlier. Owner and metadata
// come from the stored genesis.
func Open(ctx context.Context, p Params, d Deps) (*Service, error) {
	genesis, err := d.Ledger.Genesis(ctx)
	if err != nil {
		return nil, err
	}
	if p.Owner != "" && p.Owner != genesis.Owner {
		return nil, fmt.Errorf("configured owner %s does not match stored owner %s", p.Owner, genesis.Owner)
	}
	p.Owner = genesis.Owner
	p.Metadata = genesis.Metadata
	return newService(p, d)
}

func newService(p Params, d Deps) (*Service, error) {
	if d.Ledger == nil || d.Allowlist == nil || d.Executor == nil {
		return nil, errors.New("token: ledger, allowlist and executor are required")
	}
	if d.Executor.Account() != p.Contract {
		return nil, fmt.Errorf("executor runs as %s, token contract is %s", d.Executor.Account(), p.Contract)
	}
	counterpart := p.Counterpart
	if counterpart == "" {
		counterpart = p.Owner
	}
	if err := account.Validate(counterpart.String()); err != nil {
		return nil, fmt.Errorf("counterpart: %w", err)
	}
	emitter := d.Emitter
	if emitter == nil {
		emitter = events.NewLogEmitter(d.Logger)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		contract:    p.Contract,
		owner:       p.Owner,
		counterpart: counterpart,
		meta:        p.Metadata,
		price:       p.StorageBytePrice,
		ledger:      d.Ledger,
		allowlist:   d.Allowlist,
		exec:        d.Executor,
		emitter:     emitter,
		metrics:     d.Metrics,
		logger:      logger.With("component", "token"),
	}, nil
}

// Owner returns the controlling identity.
func (s *Service) Owner() account.ID { return s.owner }

// Contract returns the account the service executes as.
func (s *Service) Contract() account.ID { return s.contract }

// Receipt looks up a pending or settled transfer-and-register receipt.
func (s *Service) Receipt(id string) (*runtime.Receipt, error) {
	return s.exec.Receipt(id)
}

// IsAllowed reports whether id completed a successful transfer-and-register.
func (s *Service) IsAllowed(ctx context.Context, id string) (bool, error) {
	acct, err := account.Parse(id)
	if err != nil {
		return false, err
	}
	return s.allowlist.Contains(ctx, acct)
}

// BalanceOf returns the balance of id, zero when it is not registered.
func (s *Service) BalanceOf(ctx context.Context, id string) (balance.Balance, error) {
	acct, err := account.Parse(id)
	if err != nil {
		return balance.Balance{}, err
	}
	return s.ledger.BalanceOf(ctx, acct)
}

func (s *Service) TotalSupply(ctx context.Context) (balance.Balance, error) {
	return s.ledger.TotalSupply(ctx)
}

func (s *Service) Metadata() metadata.Metadata {
	return s.meta
}
