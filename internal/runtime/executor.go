package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/metrics"
)

const (
	defaultMailboxSize    = 256
	defaultRetainReceipts = 10_000
	drainPollInterval     = 10 * time.Millisecond
)

// Config configures an Executor.
type Config struct {
	// Account is the identity the executor runs handlers as.
	Account    account.ID
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// GasTime is the dispatch time granted per TGas.
	GasTime        time.Duration
	MailboxSize    int
	RetainReceipts int
}

type message struct {
	ctx     context.Context
	origin  Origin
	results []PromiseResult
	handler Handler

	// reply is set for external submissions.
	reply chan result
	// receipt is set for callbacks.
	receipt *Receipt
}

type result struct {
	outcome Outcome
	err     error
}

// Executor runs handlers one at a time from a mailbox. Handlers never run
// concurrently with each other, so state they own needs no extra locking
// beyond what concurrent readers require.
type Executor struct {
	account    account.ID
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	gasTime    time.Duration

	mailbox  chan message
	stopping atomic.Bool
	inflight atomic.Int64
	started  atomic.Bool
	done     chan struct{}

	mu       sync.RWMutex
	receipts map[string]*Receipt
	order    []string
	retain   int
}

// New constructs an executor. Run must be called before submissions are processed.
func New(cfg Config) (*Executor, error) {
	if err := account.Validate(cfg.Account.String()); err != nil {
		return nil, fmt.Errorf("executor account: %w", err)
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("executor dispatcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.MailboxSize
	if size <= 0 {
		size = defaultMailboxSize
	}
	retain := cfg.RetainReceipts
	if retain <= 0 {
		retain = defaultRetainReceipts
	}
	gasTime := cfg.GasTime
	if gasTime <= 0 {
		gasTime = DefaultGasTime
	}

	return &Executor{
		account:    cfg.Account,
		dispatcher: cfg.Dispatcher,
		logger:     logger.With("component", "executor", "account", cfg.Account.String()),
		metrics:    cfg.Metrics,
		gasTime:    gasTime,
		mailbox:    make(chan message, size),
		done:       make(chan struct{}),
		receipts:   make(map[string]*Receipt),
		retain:     retain,
	}, nil
}

// Account returns the identity handlers run as.
func (e *Executor) Account() account.ID { return e.account }

// Run processes messages until ctx is cancelled. On cancellation it stops
// accepting submissions, waits for in-flight outbound calls and runs their
// callbacks, then returns.
func (e *Executor) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("executor already running")
	}
	defer close(e.done)

	for {
		select {
		case msg := <-e.mailbox:
			e.process(msg)
		case <-ctx.Done():
			e.stopping.Store(true)
			e.logger.Info("executor draining", "inflight", e.inflight.Load(), "queued", len(e.mailbox))
			e.drain()
			e.logger.Info("executor stopped")
			return nil
		}
	}
}

func (e *Executor) drain() {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-e.mailbox:
			e.process(msg)
			continue
		default:
		}
		if e.inflight.Load() == 0 && len(e.mailbox) == 0 {
			return
		}
		select {
		case msg := <-e.mailbox:
			e.process(msg)
		case <-ticker.C:
		}
	}
}

// Done is closed once Run returned.
func (e *Executor) Done() <-chan struct{} { return e.done }

// Execute submits a handler and waits until it ran. A handler error aborts
// the call: nothing it scheduled is dispatched and its refunds are dropped.
// ctx bounds the wait for a mailbox slot; a queued call whose ctx ended
// before its turn is rejected without running.
func (e *Executor) Execute(ctx context.Context, origin Origin, handler Handler) (Outcome, error) {
	if e.stopping.Load() {
		return Outcome{}, ErrExecutorStopped
	}
	msg := message{ctx: ctx, origin: origin, handler: handler, reply: make(chan result, 1)}

	select {
	case e.mailbox <- msg:
	case <-e.done:
		return Outcome{}, ErrExecutorStopped
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	// Once queued, only the reply says whether the handler ran.
	select {
	case res := <-msg.reply:
		return res.outcome, res.err
	case <-e.done:
		return Outcome{}, ErrExecutorStopped
	}
}

// Receipt looks up a retained receipt by id.
func (e *Executor) Receipt(id string) (*Receipt, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.receipts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, id)
	}
	return r, nil
}

func (e *Executor) process(msg message) {
	e.metrics.SetQueueDepth(len(e.mailbox))

	ctx := msg.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	env := newEnv(e.account, msg.origin, msg.results, e.logger)

	var value any
	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("call expired before it ran: %w", ctxErr)
	} else if env.used > env.origin.PrepaidGas {
		err = fmt.Errorf("%w: call needs %s, prepaid %s", ErrExceededPrepaidGas, env.used, env.origin.PrepaidGas)
	} else {
		value, err = e.invoke(ctx, env, msg.handler)
	}
	if err != nil {
		for _, p := range env.pending {
			p.receipt.resolve(nil, fmt.Errorf("call aborted: %w", err))
		}
		if msg.receipt != nil {
			e.settle(msg.receipt, nil, err)
		}
		if msg.reply != nil {
			msg.reply <- result{err: err}
		}
		return
	}

	receipts := make([]*Receipt, 0, len(env.pending))
	for _, p := range env.pending {
		e.track(p.receipt)
		receipts = append(receipts, p.receipt)
		e.dispatch(p)
	}
	for _, r := range env.refunds {
		e.logger.Info("refund", "to", r.To.String(), "amount", r.Amount.String())
	}

	if msg.receipt != nil {
		e.settle(msg.receipt, value, nil)
	}
	if msg.reply != nil {
		msg.reply <- result{outcome: Outcome{
			Value:    value,
			Receipts: receipts,
			Refunds:  env.refunds,
			GasUsed:  env.used,
		}}
	}
}

func (e *Executor) invoke(ctx context.Context, env *Env, handler Handler) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("handler panicked", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			value, err = nil, fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return handler(ctx, env)
}

func (e *Executor) dispatch(p scheduled) {
	e.inflight.Add(1)
	e.metrics.AddPendingReceipts(1)

	go func() {
		timeout := p.call.Gas.Timeout(e.gasTime)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		promise := PromiseResult{Status: PromiseSuccessful}
		value, err := e.dispatcher.Dispatch(ctx, e.account, p.call)
		switch {
		case errors.Is(err, context.DeadlineExceeded) || (err != nil && ctx.Err() != nil):
			promise = PromiseResult{Status: PromiseFailed, Reason: fmt.Sprintf("%s after %s", ErrExceededPrepaidGas, timeout)}
		case err != nil:
			promise = PromiseResult{Status: PromiseFailed, Reason: err.Error()}
		default:
			promise.Value = value
		}
		p.receipt.observe(promise.Status)

		e.logger.Debug("outbound call settled",
			"receipt", p.receipt.ID(),
			"receiver", p.call.Receiver.String(),
			"method", p.call.Method,
			"status", string(promise.Status),
			"reason", promise.Reason,
		)

		e.mailbox <- message{
			ctx: context.Background(),
			origin: Origin{
				Predecessor:     e.account,
				Signer:          e.account,
				AttachedDeposit: p.callback.Deposit,
				PrepaidGas:      p.callback.Gas,
			},
			results: []PromiseResult{promise},
			handler: p.callback.Handler,
			receipt: p.receipt,
		}
		e.inflight.Add(-1)
	}()
}

func (e *Executor) settle(r *Receipt, value any, err error) {
	if !r.resolve(value, err) {
		return
	}
	e.metrics.AddPendingReceipts(-1)
	if err != nil {
		e.logger.Warn("callback failed", "receipt", r.ID(), "callback", r.callback, "error", err)
	}
}

func (e *Executor) track(r *Receipt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.receipts[r.id] = r
	e.order = append(e.order, r.id)
	for len(e.order) > e.retain {
		oldest := e.order[0]
		e.order = e.order[1:]
		if old, ok := e.receipts[oldest]; ok {
			select {
			case <-old.done:
				delete(e.receipts, oldest)
			default:
				// still pending, keep it addressable
				e.order = append(e.order, oldest)
				return
			}
		}
	}
}
