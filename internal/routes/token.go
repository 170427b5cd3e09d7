package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_ledger/internal/token"
)

// RegisterTokenViews wires the read-only token endpoints.
func RegisterTokenViews(r fiber.Router, h *token.Handler) {
	r.Get("/ft/metadata", h.Metadata)
	r.Get("/ft/total_supply", h.TotalSupply)
	r.Get("/ft/balance/:accountId", h.BalanceOf)
	r.Get("/storage/balance_bounds", h.StorageBalanceBounds)
	r.Get("/storage/balance/:accountId", h.StorageBalanceOf)
	r.Get("/allowlist/:accountId", h.IsAllowed)
	r.Get("/receipts/:receiptId", h.Receipt)
}

// RegisterTokenCalls wires the state-changing endpoints. The router must
// authenticate callers.
func RegisterTokenCalls(r fiber.Router, h *token.Handler) {
	r.Post("/ft/transfer", h.Transfer)
	r.Post("/storage/deposit", h.StorageDeposit)
	r.Post("/storage/unregister", h.StorageUnregister)
	r.Post("/allowlist/transfer", h.TransferAndRegister)
}
