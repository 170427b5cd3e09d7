package runtime

import (
	"fmt"
	"time"
)

// Gas is the unit of execution budget attached to every call.
type Gas uint64

// TGas is one tera-gas.
const TGas Gas = 1_000_000_000_000

const (
	// CallBaseGas is burnt by every handler invocation before it runs.
	CallBaseGas = 5 * TGas
	// ReceiptBaseGas is burnt for every receipt a handler schedules.
	ReceiptBaseGas = 1 * TGas
)

// DefaultGasTime is the wall-clock allowance granted per TGas of dispatch gas.
const DefaultGasTime = 100 * time.Millisecond

// Timeout converts a gas allowance into a dispatch deadline.
func (g Gas) Timeout(perTGas time.Duration) time.Duration {
	if perTGas <= 0 {
		perTGas = DefaultGasTime
	}
	const ggas = uint64(TGas / 1000)
	return time.Duration(uint64(g)/ggas) * perTGas / 1000
}

func (g Gas) String() string {
	if g%TGas == 0 {
		return fmt.Sprintf("%d TGas", g/TGas)
	}
	return fmt.Sprintf("%d gas", uint64(g))
}
