package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/token_ledger/internal/account"
)

// ReceiptStatus tracks a scheduled call and its callback.
type ReceiptStatus string

const (
	ReceiptPending ReceiptStatus = "pending"
	ReceiptSettled ReceiptStatus = "settled"
	ReceiptFailed  ReceiptStatus = "failed"
)

// Receipt resolves with the callback's value once the outbound call settled
// and the callback ran. It resolves exactly once.
type Receipt struct {
	id       string
	receiver account.ID
	method   string
	callback string
	created  time.Time

	once   sync.Once
	done   chan struct{}
	mu     sync.RWMutex
	status ReceiptStatus
	call   PromiseStatus
	value  any
	err    error
}

// ReceiptSnapshot is a point-in-time view of a receipt.
type ReceiptSnapshot struct {
	ID         string        `json:"id"`
	Receiver   string        `json:"receiver"`
	Method     string        `json:"method"`
	Callback   string        `json:"callback"`
	Status     ReceiptStatus `json:"status"`
	CallStatus PromiseStatus `json:"call_status,omitempty"`
	Value      any           `json:"value,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

func newReceipt(receiver account.ID, method, callback string) *Receipt {
	return &Receipt{
		id:       uuid.NewString(),
		receiver: receiver,
		method:   method,
		callback: callback,
		created:  time.Now().UTC(),
		done:     make(chan struct{}),
		status:   ReceiptPending,
	}
}

// ID returns the receipt identifier.
func (r *Receipt) ID() string { return r.id }

// Done is closed once the receipt resolved.
func (r *Receipt) Done() <-chan struct{} { return r.done }

// Wait blocks until the callback ran or ctx ends.
func (r *Receipt) Wait(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns the current state of the receipt.
func (r *Receipt) Snapshot() ReceiptSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := ReceiptSnapshot{
		ID:         r.id,
		Receiver:   r.receiver.String(),
		Method:     r.method,
		Callback:   r.callback,
		Status:     r.status,
		CallStatus: r.call,
		Value:      r.value,
		CreatedAt:  r.created,
	}
	if r.err != nil {
		snap.Error = r.err.Error()
	}
	return snap
}

func (r *Receipt) observe(status PromiseStatus) {
	r.mu.Lock()
	r.call = status
	r.mu.Unlock()
}

// resolve reports whether this call performed the resolution.
func (r *Receipt) resolve(value any, err error) bool {
	resolved := false
	r.once.Do(func() {
		r.mu.Lock()
		r.value, r.err = value, err
		if err != nil {
			r.status = ReceiptFailed
		} else {
			r.status = ReceiptSettled
		}
		r.mu.Unlock()
		close(r.done)
		resolved = true
	})
	return resolved
}
