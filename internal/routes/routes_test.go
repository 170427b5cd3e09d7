package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/allowlist"
	"github.com/congo-pay/token_ledger/internal/auth"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/config"
	"github.com/congo-pay/token_ledger/internal/counterpart"
	"github.com/congo-pay/token_ledger/internal/events"
	"github.com/congo-pay/token_ledger/internal/ledger"
	"github.com/congo-pay/token_ledger/internal/logging"
	"github.com/congo-pay/token_ledger/internal/metadata"
	"github.com/congo-pay/token_ledger/internal/metrics"
	"github.com/congo-pay/token_ledger/internal/runtime"
	"github.com/congo-pay/token_ledger/internal/token"
)

const bytePrice = "10000000000000000000"

var (
	contract = account.MustParse("token.ledger")
	owner    = account.MustParse("owner.near")
)

type testApp struct {
	app    *fiber.App
	issuer *auth.Issuer
	bank   *counterpart.Static
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	bank := counterpart.NewStatic(counterpart.OutcomeSuccess, 0)

	exec, err := runtime.New(runtime.Config{Account: contract, Dispatcher: bank, Logger: logger, Metrics: m})
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go exec.Run(ctx) // nolint:errcheck
	t.Cleanup(func() {
		cancel()
		<-exec.Done()
	})

	svc, err := token.Initialize(context.Background(), token.Params{
		Contract:         contract,
		Owner:            owner,
		TotalSupply:      balance.FromUint64(1_000_000),
		Metadata:         metadata.Default(),
		StorageBytePrice: balance.MustParse(bytePrice),
	}, token.Deps{
		Ledger:    ledger.NewInMemory(),
		Allowlist: allowlist.NewRedisStore(cache),
		Executor:  exec,
		Emitter:   &events.Recorder{},
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	issuer, err := auth.NewIssuer("secret", "TokenLedger", time.Minute)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	app := fiber.New()
	err = Setup(app, Deps{
		Cfg: config.Config{
			AppEnv:          "production",
			PrepaidTGas:     300,
			IdempotencyTTL:  time.Minute,
			CallerRateLimit: 100,
		},
		Cache:    cache,
		Logger:   logger,
		Token:    svc,
		Issuer:   issuer,
		Registry: reg,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return &testApp{app: app, issuer: issuer, bank: bank}
}

func (a *testApp) do(t *testing.T, method, path string, caller account.ID, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if caller != "" {
		tok, _, err := a.issuer.Issue(caller)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
		req.Header.Set("Idempotency-Key", caller.String()+":"+method+":"+path+":"+body+":"+headers["Idempotency-Key"])
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestViews(t *testing.T) {
	a := setupApp(t)

	code, body := a.do(t, fiber.MethodGet, "/api/v1/ft/total_supply", "", "", nil)
	if code != fiber.StatusOK || body["total_supply"] != "1000000" {
		t.Fatalf("unexpected total supply %d %v", code, body)
	}
	code, body = a.do(t, fiber.MethodGet, "/api/v1/ft/balance/owner.near", "", "", nil)
	if code != fiber.StatusOK || body["balance"] != "1000000" {
		t.Fatalf("unexpected balance %d %v", code, body)
	}
	code, body = a.do(t, fiber.MethodGet, "/api/v1/ft/metadata", "", "", nil)
	if code != fiber.StatusOK || body["spec"] != metadata.SpecVersion {
		t.Fatalf("unexpected metadata %d %v", code, body)
	}
	code, _ = a.do(t, fiber.MethodGet, "/api/v1/ft/balance/NOT_VALID", "", "", nil)
	if code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for invalid account, got %d", code)
	}
	code, _ = a.do(t, fiber.MethodGet, "/api/v1/receipts/unknown", "", "", nil)
	if code != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown receipt, got %d", code)
	}
	code, _ = a.do(t, fiber.MethodGet, "/metrics", "", "", nil)
	if code != fiber.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", code)
	}
}

func TestCallsRequireAuthentication(t *testing.T) {
	a := setupApp(t)
	code, _ := a.do(t, fiber.MethodPost, "/api/v1/ft/transfer", "", `{"receiver_id":"bob.near","amount":"1"}`, nil)
	if code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRegisterAndTransfer(t *testing.T) {
	a := setupApp(t)
	bob := account.MustParse("bob.near")

	_, bounds := a.do(t, fiber.MethodGet, "/api/v1/storage/balance_bounds", "", "", nil)
	minimum, _ := bounds["min"].(string)

	code, body := a.do(t, fiber.MethodPost, "/api/v1/storage/deposit", bob, "", map[string]string{"X-Attached-Deposit": minimum})
	if code != fiber.StatusOK || body["total"] != minimum {
		t.Fatalf("unexpected deposit response %d %v", code, body)
	}

	code, body = a.do(t, fiber.MethodPost, "/api/v1/ft/transfer", owner, `{"receiver_id":"bob.near","amount":"300000"}`,
		map[string]string{"X-Attached-Deposit": "1"})
	if code != fiber.StatusOK {
		t.Fatalf("unexpected transfer response %d %v", code, body)
	}

	_, body = a.do(t, fiber.MethodGet, "/api/v1/ft/balance/bob.near", "", "", nil)
	if body["balance"] != "300000" {
		t.Fatalf("expected bob to hold 300000, got %v", body)
	}

	code, _ = a.do(t, fiber.MethodPost, "/api/v1/ft/transfer", owner, `{"receiver_id":"bob.near","amount":"1"}`, nil)
	if code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without the yocto deposit, got %d", code)
	}
	code, _ = a.do(t, fiber.MethodPost, "/api/v1/ft/transfer", bob, `{"receiver_id":"owner.near","amount":"300001"}`,
		map[string]string{"X-Attached-Deposit": "1"})
	if code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for insufficient balance, got %d", code)
	}
}

func TestTransferAndRegister(t *testing.T) {
	a := setupApp(t)

	code, _ := a.do(t, fiber.MethodPost, "/api/v1/allowlist/transfer", account.MustParse("bob.near"),
		`{"recipient":"carol.near","amount":"100"}`, nil)
	if code != fiber.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", code)
	}

	code, body := a.do(t, fiber.MethodPost, "/api/v1/allowlist/transfer?wait=true", owner,
		`{"recipient":"carol.near","amount":"100"}`, nil)
	if code != fiber.StatusOK || body["status"] != string(runtime.ReceiptSettled) || body["value"] != true {
		t.Fatalf("unexpected settled response %d %v", code, body)
	}

	_, body = a.do(t, fiber.MethodGet, "/api/v1/allowlist/carol.near", "", "", nil)
	if body["allowed"] != true {
		t.Fatalf("expected carol to be allowed, got %v", body)
	}

	a.bank.SetOutcome(counterpart.OutcomeFailure)
	code, body = a.do(t, fiber.MethodPost, "/api/v1/allowlist/transfer?wait=true", owner,
		`{"recipient":"dave.near","amount":"100"}`, nil)
	if code != fiber.StatusOK || body["value"] != false {
		t.Fatalf("unexpected failed settlement %d %v", code, body)
	}
	id, _ := body["id"].(string)
	code, body = a.do(t, fiber.MethodGet, "/api/v1/receipts/"+id, "", "", nil)
	if code != fiber.StatusOK || body["call_status"] != string(runtime.PromiseFailed) {
		t.Fatalf("unexpected receipt lookup %d %v", code, body)
	}
	_, body = a.do(t, fiber.MethodGet, "/api/v1/allowlist/dave.near", "", "", nil)
	if body["allowed"] != false {
		t.Fatalf("expected dave not allowed, got %v", body)
	}
}
