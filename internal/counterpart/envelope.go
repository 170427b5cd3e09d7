package counterpart

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/runtime"
)

// EnvelopeVersion is the payload version sent to counterparts.
const EnvelopeVersion = 1

// MethodFtTransfer moves externally-held tokens on the caller's behalf.
const MethodFtTransfer = "ft_transfer"

// ErrUnsupportedVersion rejects envelopes from a newer protocol.
var ErrUnsupportedVersion = errors.New("unsupported envelope version")

// Envelope wraps every outbound call.
type Envelope struct {
	Version  int             `json:"version"`
	Caller   account.ID      `json:"caller"`
	Receiver account.ID      `json:"receiver"`
	Method   string          `json:"method"`
	Args     json.RawMessage `json:"args"`
	Deposit  balance.Balance `json:"deposit"`
	Gas      uint64          `json:"gas"`
}

// TransferArgs are the arguments of ft_transfer.
type TransferArgs struct {
	ReceiverID account.ID      `json:"receiver_id"`
	Amount     balance.Balance `json:"amount"`
	Memo       *string         `json:"memo,omitempty"`
}

// EncodeTransfer serializes ft_transfer arguments.
func EncodeTransfer(args TransferArgs) ([]byte, error) {
	return json.Marshal(args)
}

// DecodeTransfer parses ft_transfer arguments.
func DecodeTransfer(raw []byte) (TransferArgs, error) {
	var args TransferArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return TransferArgs{}, fmt.Errorf("decode transfer args: %w", err)
	}
	if err := account.Validate(args.ReceiverID.String()); err != nil {
		return TransferArgs{}, err
	}
	return args, nil
}

// NewEnvelope wraps a runtime call for the wire.
func NewEnvelope(from account.ID, call runtime.Call) Envelope {
	return Envelope{
		Version:  EnvelopeVersion,
		Caller:   from,
		Receiver: call.Receiver,
		Method:   call.Method,
		Args:     json.RawMessage(call.Args),
		Deposit:  call.Deposit,
		Gas:      uint64(call.Gas),
	}
}

// DecodeEnvelope parses and version-checks an envelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	return env, nil
}
