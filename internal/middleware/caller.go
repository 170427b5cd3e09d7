package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/auth"
)

const callerLocalsKey = "caller_id"

// CallerAuth validates the bearer token and stores the calling account.
func CallerAuth(issuer *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		caller, err := issuer.Verify(token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(callerLocalsKey, caller)
		return c.Next()
	}
}

// Caller returns the account authenticated by CallerAuth.
func Caller(c *fiber.Ctx) (account.ID, bool) {
	id, ok := c.Locals(callerLocalsKey).(account.ID)
	return id, ok && id != ""
}
