package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
)

const (
	// Standard and Version identify the event schema.
	Standard = "nep141"
	Version  = "1.0.0"

	// KindMint is emitted once, when the initial supply is minted.
	KindMint = "ft_mint"
	// KindTransfer is emitted for every standard transfer.
	KindTransfer = "ft_transfer"

	logPrefix = "EVENT_JSON:"
)

// Mint records newly created tokens.
type Mint struct {
	OwnerID account.ID      `json:"owner_id"`
	Amount  balance.Balance `json:"amount"`
	Memo    string          `json:"memo,omitempty"`
}

// Transfer records tokens moving between two accounts.
type Transfer struct {
	OldOwnerID account.ID      `json:"old_owner_id"`
	NewOwnerID account.ID      `json:"new_owner_id"`
	Amount     balance.Balance `json:"amount"`
	Memo       string          `json:"memo,omitempty"`
}

// Event is the structured envelope written to the event log.
type Event struct {
	Standard string `json:"standard"`
	Version  string `json:"version"`
	Event    string `json:"event"`
	Data     any    `json:"data"`
}

// NewMint wraps mint records in an event.
func NewMint(data ...Mint) Event {
	return Event{Standard: Standard, Version: Version, Event: KindMint, Data: data}
}

// NewTransfer wraps transfer records in an event.
func NewTransfer(data ...Transfer) Event {
	return Event{Standard: Standard, Version: Version, Event: KindTransfer, Data: data}
}

// String renders the event in its log line form.
func (e Event) String() string {
	payload, err := json.Marshal(e)
	if err != nil {
		return logPrefix + "{}"
	}
	return logPrefix + string(payload)
}

// Emitter publishes ledger events to downstream consumers.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// LogEmitter writes events to the structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter constructs a logging emitter.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit writes the event line to the logger.
func (e *LogEmitter) Emit(_ context.Context, event Event) error {
	if e == nil || e.logger == nil {
		return nil
	}
	e.logger.Info(event.String(), "kind", event.Event)
	return nil
}

// Recorder keeps emitted events in memory. Useful for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event.
func (r *Recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
