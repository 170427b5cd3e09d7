package token

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/ledger"
	"github.com/congo-pay/token_ledger/internal/middleware"
	"github.com/congo-pay/token_ledger/internal/runtime"
)

const (
	headerAttachedDeposit = "X-Attached-Deposit"
	headerPrepaidGas      = "X-Prepaid-Gas"
	defaultWaitTimeout    = 30 * time.Second
)

// Handler exposes the token over HTTP.
type Handler struct {
	service     *Service
	prepaidGas  runtime.Gas
	waitTimeout time.Duration
}

// NewHandler constructs a token handler. prepaidGas is attached to calls
// that do not carry an X-Prepaid-Gas header.
func NewHandler(service *Service, prepaidGas runtime.Gas, waitTimeout time.Duration) *Handler {
	if prepaidGas == 0 {
		prepaidGas = 300 * runtime.TGas
	}
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	return &Handler{service: service, prepaidGas: prepaidGas, waitTimeout: waitTimeout}
}

type transferRequest struct {
	ReceiverID string          `json:"receiver_id"`
	Amount     balance.Balance `json:"amount"`
	Memo       string          `json:"memo"`
}

type storageDepositRequest struct {
	AccountID        string `json:"account_id"`
	RegistrationOnly bool   `json:"registration_only"`
}

type storageUnregisterRequest struct {
	Force bool `json:"force"`
}

type transferAndRegisterRequest struct {
	Recipient string          `json:"recipient"`
	Amount    balance.Balance `json:"amount"`
}

// Metadata returns the token metadata.
func (h *Handler) Metadata(c *fiber.Ctx) error {
	return c.JSON(h.service.Metadata())
}

func (h *Handler) TotalSupply(c *fiber.Ctx) error {
	supply, err := h.service.TotalSupply(c.UserContext())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"total_supply": supply})
}

func (h *Handler) BalanceOf(c *fiber.Ctx) error {
	id := c.Params("accountId")
	amount, err := h.service.BalanceOf(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"account_id": id, "balance": amount})
}

func (h *Handler) StorageBalanceBounds(c *fiber.Ctx) error {
	bounds, err := h.service.StorageBalanceBounds()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(bounds)
}

// StorageBalanceOf answers null for unregistered accounts.
func (h *Handler) StorageBalanceOf(c *fiber.Ctx) error {
	sb, err := h.service.StorageBalanceOf(c.UserContext(), c.Params("accountId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(sb)
}

func (h *Handler) IsAllowed(c *fiber.Ctx) error {
	id := c.Params("accountId")
	allowed, err := h.service.IsAllowed(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"account_id": id, "allowed": allowed})
}

func (h *Handler) Receipt(c *fiber.Ctx) error {
	receipt, err := h.service.Receipt(c.Params("receiptId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(receipt.Snapshot())
}

// Transfer is the standard ft_transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	origin, err := h.origin(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.FtTransfer(c.UserContext(), origin, req.ReceiverID, req.Amount, req.Memo); err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"sender_id": origin.Predecessor, "receiver_id": req.ReceiverID, "amount": req.Amount})
}

func (h *Handler) StorageDeposit(c *fiber.Ctx) error {
	origin, err := h.origin(c)
	if err != nil {
		return err
	}
	var req storageDepositRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	sb, err := h.service.StorageDeposit(c.UserContext(), origin, req.AccountID, req.RegistrationOnly)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(sb)
}

func (h *Handler) StorageUnregister(c *fiber.Ctx) error {
	origin, err := h.origin(c)
	if err != nil {
		return err
	}
	var req storageUnregisterRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	removed, err := h.service.StorageUnregister(c.UserContext(), origin, req.Force)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"unregistered": removed})
}

// TransferAndRegister answers 202 with the pending receipt, or with the
// settled receipt when called with ?wait=true.
func (h *Handler) TransferAndRegister(c *fiber.Ctx) error {
	origin, err := h.origin(c)
	if err != nil {
		return err
	}
	var req transferAndRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	receipt, err := h.service.TransferAndRegister(c.UserContext(), origin, req.Recipient, req.Amount)
	if err != nil {
		return httpError(err)
	}

	if c.QueryBool("wait") {
		ctx, cancel := context.WithTimeout(c.UserContext(), h.waitTimeout)
		defer cancel()
		select {
		case <-receipt.Done():
			return c.Status(http.StatusOK).JSON(receipt.Snapshot())
		case <-ctx.Done():
		}
	}
	return c.Status(http.StatusAccepted).JSON(receipt.Snapshot())
}

func (h *Handler) origin(c *fiber.Ctx) (runtime.Origin, error) {
	caller, ok := middleware.Caller(c)
	if !ok {
		return runtime.Origin{}, fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	origin := runtime.Origin{Predecessor: caller, Signer: caller, PrepaidGas: h.prepaidGas}

	if raw := c.Get(headerAttachedDeposit); raw != "" {
		deposit, err := balance.Parse(raw)
		if err != nil {
			return runtime.Origin{}, fiber.NewError(http.StatusBadRequest, headerAttachedDeposit+": "+err.Error())
		}
		origin.AttachedDeposit = deposit
	}
	if raw := c.Get(headerPrepaidGas); raw != "" {
		tgas, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return runtime.Origin{}, fiber.NewError(http.StatusBadRequest, headerPrepaidGas+" must be a whole number of TGas")
		}
		origin.PrepaidGas = runtime.Gas(tgas) * runtime.TGas
	}
	return origin, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, account.ErrInvalidAccount),
		errors.Is(err, balance.ErrInvalid),
		errors.Is(err, ledger.ErrZeroAmount),
		errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, ErrRequiresOneYocto):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, runtime.ErrReceiptNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrAccountNotRegistered),
		errors.Is(err, ledger.ErrInsufficientDeposit),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, ledger.ErrPositiveBalance),
		errors.Is(err, runtime.ErrExceededPrepaidGas):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, runtime.ErrExecutorStopped),
		errors.Is(err, ledger.ErrNotInitialized):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
