package counterpart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/runtime"
)

// ErrRejected is returned when the counterpart answers with a non-2xx status.
var ErrRejected = errors.New("counterpart rejected call")

// HTTPDispatcher posts envelopes to a counterpart service.
type HTTPDispatcher struct {
	baseURL string
	logger  *slog.Logger
}

// NewHTTPDispatcher builds a dispatcher for the counterpart at baseURL.
func NewHTTPDispatcher(baseURL string, logger *slog.Logger) (*HTTPDispatcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("counterpart url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDispatcher{baseURL: baseURL, logger: logger}, nil
}

// Dispatch sends the call and waits for the answer or the ctx deadline.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, from account.ID, call runtime.Call) ([]byte, error) {
	payload, err := json.Marshal(NewEnvelope(from, call))
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	timeout := call.Gas.Timeout(runtime.DefaultGasTime)
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	agent := fiber.Post(d.baseURL + "/v1/calls/" + call.Method)
	agent.ContentType(fiber.MIMEApplicationJSON).
		Set("X-Caller", from.String()).
		Set("X-Receiver", call.Receiver.String()).
		Body(payload).
		Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return nil, fmt.Errorf("prepare counterpart request: %w", err)
	}

	type response struct {
		status int
		body   []byte
		errs   []error
	}
	done := make(chan response, 1)
	go func() {
		status, body, errs := agent.Bytes()
		done <- response{status: status, body: body, errs: errs}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if len(res.errs) > 0 {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("call %s: %w", call.Method, errors.Join(res.errs...))
		}
		if res.status < 200 || res.status >= 300 {
			d.logger.Warn("counterpart rejected call", "method", call.Method, "status", res.status)
			return nil, fmt.Errorf("%w: %s returned %d: %s", ErrRejected, call.Method, res.status, strings.TrimSpace(string(res.body)))
		}
		return res.body, nil
	}
}
