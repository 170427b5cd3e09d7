package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/logging"
)

var (
	self       = account.MustParse("token.ledger")
	caller     = account.MustParse("alice.near")
	remote     = account.MustParse("bank.near")
	testOrigin = Origin{Predecessor: caller, Signer: caller, PrepaidGas: 300 * TGas}
)

func startExecutor(t *testing.T, dispatcher Dispatcher, gasTime time.Duration) *Executor {
	t.Helper()
	exec, err := New(Config{Account: self, Dispatcher: dispatcher, Logger: logging.Discard(), GasTime: gasTime})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go exec.Run(ctx) // nolint:errcheck
	t.Cleanup(func() {
		cancel()
		<-exec.Done()
	})
	return exec
}

func succeed(value string) Dispatcher {
	return DispatchFunc(func(context.Context, account.ID, Call) ([]byte, error) {
		return []byte(value), nil
	})
}

func echoCallback(observed *[]PromiseResult, mu *sync.Mutex) Handler {
	return func(_ context.Context, env *Env) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		for i := 0; i < env.PromiseResultsCount(); i++ {
			r, _ := env.PromiseResult(i)
			*observed = append(*observed, r)
		}
		if env.Predecessor() != self {
			return nil, errors.New("callback predecessor must be the executor account")
		}
		r, err := env.PromiseResult(0)
		if err != nil {
			return nil, err
		}
		return r.Succeeded(), nil
	}
}

func scheduleOne(cb Handler) Handler {
	return func(_ context.Context, env *Env) (any, error) {
		return env.Schedule(
			Call{Receiver: remote, Method: "ft_transfer", Deposit: balance.One, Gas: 60 * TGas},
			Callback{Method: "on_settled", Gas: 30 * TGas, Handler: cb},
		)
	}
}

func TestExecutor_CallbackObservesExactlyOneResult(t *testing.T) {
	exec := startExecutor(t, succeed(`"ok"`), 0)

	var mu sync.Mutex
	var observed []PromiseResult
	out, err := exec.Execute(context.Background(), testOrigin, scheduleOne(echoCallback(&observed, &mu)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(out.Receipts))
	}
	receipt := out.Value.(*Receipt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	value, err := receipt.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if value != true {
		t.Fatalf("expected true, got %v", value)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || string(observed[0].Value) != `"ok"` {
		t.Fatalf("unexpected observed results %+v", observed)
	}

	snap := receipt.Snapshot()
	if snap.Status != ReceiptSettled || snap.CallStatus != PromiseSuccessful {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	found, err := exec.Receipt(receipt.ID())
	if err != nil || found != receipt {
		t.Fatalf("receipt lookup failed: %v", err)
	}
}

func TestExecutor_FailedHandlerDropsScheduledCalls(t *testing.T) {
	var calls atomic.Int32
	dispatcher := DispatchFunc(func(context.Context, account.ID, Call) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	})
	exec := startExecutor(t, dispatcher, 0)

	boom := errors.New("boom")
	var scheduledReceipt *Receipt
	_, err := exec.Execute(context.Background(), testOrigin, func(ctx context.Context, env *Env) (any, error) {
		r, err := scheduleOne(func(context.Context, *Env) (any, error) { return true, nil })(ctx, env)
		if err != nil {
			return nil, err
		}
		scheduledReceipt = r.(*Receipt)
		env.Refund(caller, balance.One)
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}

	// a follow-up call proves the mailbox moved past the failed one
	if _, err := exec.Execute(context.Background(), testOrigin, func(context.Context, *Env) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("follow-up execute: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no dispatch, got %d", calls.Load())
	}
	if _, err := scheduledReceipt.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected dropped receipt to carry handler error, got %v", err)
	}
	if _, err := exec.Receipt(scheduledReceipt.ID()); !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("dropped receipt must not be tracked, got %v", err)
	}
}

func TestExecutor_DispatchTimeoutBecomesFailure(t *testing.T) {
	dispatcher := DispatchFunc(func(ctx context.Context, _ account.ID, _ Call) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	// 60 TGas at 100µs per TGas gives the call 6ms
	exec := startExecutor(t, dispatcher, 100*time.Microsecond)

	var mu sync.Mutex
	var observed []PromiseResult
	out, err := exec.Execute(context.Background(), testOrigin, scheduleOne(echoCallback(&observed, &mu)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	value, err := out.Receipts[0].Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if value != false {
		t.Fatalf("expected false, got %v", value)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0].Status != PromiseFailed {
		t.Fatalf("expected a single failed result, got %+v", observed)
	}
}

func TestExecutor_CallbackErrorFailsReceipt(t *testing.T) {
	exec := startExecutor(t, succeed("null"), 0)
	mismatch := func(context.Context, *Env) (any, error) {
		return nil, ErrCallbackResultCountMismatch
	}

	out, err := exec.Execute(context.Background(), testOrigin, scheduleOne(mismatch))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	receipt := out.Receipts[0]
	if _, err := receipt.Wait(context.Background()); !errors.Is(err, ErrCallbackResultCountMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if receipt.Snapshot().Status != ReceiptFailed {
		t.Fatalf("expected failed receipt")
	}
}

func TestExecutor_PrepaidGasExhaustion(t *testing.T) {
	exec := startExecutor(t, succeed("null"), 0)

	origin := testOrigin
	origin.PrepaidGas = 50 * TGas
	_, err := exec.Execute(context.Background(), origin, scheduleOne(func(context.Context, *Env) (any, error) { return nil, nil }))
	if !errors.Is(err, ErrExceededPrepaidGas) {
		t.Fatalf("expected exceeded gas, got %v", err)
	}

	origin.PrepaidGas = 0
	ran := false
	_, err = exec.Execute(context.Background(), origin, func(context.Context, *Env) (any, error) {
		ran = true
		return nil, nil
	})
	if !errors.Is(err, ErrExceededPrepaidGas) || ran {
		t.Fatalf("expected call rejected before running, err=%v ran=%v", err, ran)
	}
}

func TestExecutor_GasAccounting(t *testing.T) {
	exec := startExecutor(t, succeed("null"), 0)
	out, err := exec.Execute(context.Background(), testOrigin, scheduleOne(func(context.Context, *Env) (any, error) { return nil, nil }))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := CallBaseGas + 60*TGas + 30*TGas + 2*ReceiptBaseGas
	if out.GasUsed != want {
		t.Fatalf("expected %s used, got %s", want, out.GasUsed)
	}
}

func TestExecutor_RecoversHandlerPanic(t *testing.T) {
	exec := startExecutor(t, succeed("null"), 0)
	_, err := exec.Execute(context.Background(), testOrigin, func(context.Context, *Env) (any, error) {
		panic("bad handler")
	})
	if err == nil {
		t.Fatalf("expected error from panicking handler")
	}
	if _, err := exec.Execute(context.Background(), testOrigin, func(context.Context, *Env) (any, error) { return 1, nil }); err != nil {
		t.Fatalf("executor should keep running: %v", err)
	}
}

func TestExecutor_HandlersNeverOverlap(t *testing.T) {
	exec := startExecutor(t, succeed("null"), 0)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Execute(context.Background(), testOrigin, func(context.Context, *Env) (any, error) {
				n := active.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil, nil
			})
			if err != nil {
				t.Errorf("execute: %v", err)
			}
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("handlers overlapped, peak concurrency %d", peak.Load())
	}
}

func TestExecutor_ShutdownDrainsInflightCallbacks(t *testing.T) {
	release := make(chan struct{})
	dispatcher := DispatchFunc(func(ctx context.Context, _ account.ID, _ Call) ([]byte, error) {
		<-release
		return []byte("true"), nil
	})
	exec, err := New(Config{Account: self, Dispatcher: dispatcher, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go exec.Run(ctx) // nolint:errcheck

	var mu sync.Mutex
	var observed []PromiseResult
	out, err := exec.Execute(context.Background(), testOrigin, scheduleOne(echoCallback(&observed, &mu)))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	cancel()
	close(release)
	<-exec.Done()

	select {
	case <-out.Receipts[0].Done():
	default:
		t.Fatalf("receipt not resolved after drain")
	}
	if _, err := exec.Execute(context.Background(), testOrigin, func(context.Context, *Env) (any, error) { return nil, nil }); !errors.Is(err, ErrExecutorStopped) {
		t.Fatalf("expected executor stopped, got %v", err)
	}
}

func TestExecutor_ExpiredSubmissionNeverRuns(t *testing.T) {
	exec, err := New(Config{Account: self, Dispatcher: succeed("true"), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}

	var ran atomic.Bool
	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := exec.Execute(ctx, testOrigin, func(context.Context, *Env) (any, error) {
			ran.Store(true)
			return nil, nil
		})
		errCh <- err
	}()

	// The executor only starts after the submission's deadline passed.
	time.Sleep(60 * time.Millisecond)
	runCtx, stop := context.WithCancel(context.Background())
	go exec.Run(runCtx) // nolint:errcheck
	t.Cleanup(func() {
		stop()
		<-exec.Done()
	})

	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("execute did not return")
	}
	if ran.Load() {
		t.Fatalf("handler ran although its caller was told the call failed")
	}

	// A reported success means the handler ran, even if ctx ends right after.
	ctx, cancel := context.WithCancel(context.Background())
	_, err = exec.Execute(ctx, testOrigin, func(context.Context, *Env) (any, error) {
		cancel()
		ran.Store(true)
		return nil, nil
	})
	if err != nil || !ran.Load() {
		t.Fatalf("expected committed call to report success, got %v (ran=%v)", err, ran.Load())
	}
}

func TestEnvBuilder(t *testing.T) {
	env := NewEnvBuilder(self).
		Predecessor(caller).
		AttachedDeposit(balance.One).
		PromiseResults(PromiseResult{Status: PromiseFailed}, PromiseResult{Status: PromiseSuccessful}).
		Build()

	if env.Predecessor() != caller || env.CurrentAccount() != self {
		t.Fatalf("unexpected identities %s/%s", env.Predecessor(), env.CurrentAccount())
	}
	if env.PromiseResultsCount() != 2 {
		t.Fatalf("expected 2 results, got %d", env.PromiseResultsCount())
	}
	if _, err := env.PromiseResult(2); !errors.Is(err, ErrPromiseResultIndex) {
		t.Fatalf("expected index error, got %v", err)
	}
}

func TestGasTimeout(t *testing.T) {
	if got := (60 * TGas).Timeout(100 * time.Millisecond); got != 6*time.Second {
		t.Fatalf("expected 6s, got %s", got)
	}
	if got := (TGas / 2).Timeout(100 * time.Millisecond); got != 50*time.Millisecond {
		t.Fatalf("expected 50ms, got %s", got)
	}
}
