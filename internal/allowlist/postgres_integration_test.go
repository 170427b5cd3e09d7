//go:build integration

package allowlist

import (
	"testing"

	"github.com/congo-pay/token_ledger/internal/infra"
)

func TestPostgresStore(t *testing.T) {
	exerciseStore(t, NewPostgresStore(infra.StartPostgres(t)))
}
