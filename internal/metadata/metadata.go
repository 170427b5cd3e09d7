package metadata

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpecVersion is the only metadata spec this service serves.
const SpecVersion = "ft-1.0.0"

// ErrInvalidMetadata is returned by Validate.
var ErrInvalidMetadata = errors.New("invalid token metadata")

// Hash is a 32-byte digest carried as base64 in JSON and YAML.
type Hash []byte

// MarshalText encodes the hash as standard base64.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(h)), nil
}

// MarshalJSON writes null for an absent hash.
func (h Hash) MarshalJSON() ([]byte, error) {
	if len(h) == 0 {
		return []byte("null"), nil
	}
	text, _ := h.MarshalText()
	return json.Marshal(string(text))
}

// UnmarshalJSON accepts null or a base64 string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*h = nil
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("decode reference hash: %w", err)
	}
	return h.UnmarshalText([]byte(text))
}

// UnmarshalText decodes standard base64.
func (h *Hash) UnmarshalText(text []byte) error {
	decoded, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode reference hash: %w", err)
	}
	*h = decoded
	return nil
}

// Metadata describes the token. It is opaque to the ledger and only served.
type Metadata struct {
	Spec          string  `json:"spec" yaml:"spec"`
	Name          string  `json:"name" yaml:"name"`
	Symbol        string  `json:"symbol" yaml:"symbol"`
	Icon          *string `json:"icon" yaml:"icon"`
	Reference     *string `json:"reference" yaml:"reference"`
	ReferenceHash Hash    `json:"reference_hash" yaml:"reference_hash"`
	Decimals      uint8   `json:"decimals" yaml:"decimals"`
}

// DefaultIcon is the data-URI icon of the example token.
const DefaultIcon = "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 288 288'%3E%3Cg id='l' data-name='l'%3E%3Cpath d='M187.58,79.81l-30.1,44.69a3.2,3.2,0,0,0,4.75,4.2L191.86,103a1.2,1.2,0,0,1,2,.91v80.46a1.2,1.2,0,0,1-2.12.77L102.18,77.93A15.35,15.35,0,0,0,90.47,72.5H87.34A15.34,15.34,0,0,0,72,87.84V201.16A15.34,15.34,0,0,0,87.34,216.5h0a15.35,15.35,0,0,0,13.08-7.31l30.1-44.69a3.2,3.2,0,0,0-4.75-4.2L96.14,186a1.2,1.2,0,0,1-2-.91V104.61a1.2,1.2,0,0,1,2.12-.77l89.55,107.23a15.35,15.35,0,0,0,11.71,5.43h3.13A15.34,15.34,0,0,0,216,201.16V87.84A15.34,15.34,0,0,0,200.66,72.5h0A15.35,15.35,0,0,0,187.58,79.81Z'/%3E%3C/g%3E%3C/svg%3E"

// Default returns the example metadata used when no file is configured.
func Default() Metadata {
	icon := DefaultIcon
	return Metadata{
		Spec:     SpecVersion,
		Name:     "Example NEAR fungible token",
		Symbol:   "EXAMPLE",
		Icon:     &icon,
		Decimals: 24,
	}
}

// Validate enforces the metadata spec version and that reference and
// reference hash are either both present or both absent.
func (m Metadata) Validate() error {
	if m.Spec != SpecVersion {
		return fmt.Errorf("%w: spec must be %q, got %q", ErrInvalidMetadata, SpecVersion, m.Spec)
	}
	if m.Name == "" || m.Symbol == "" {
		return fmt.Errorf("%w: name and symbol are required", ErrInvalidMetadata)
	}
	if (m.Reference == nil) != (len(m.ReferenceHash) == 0) {
		return fmt.Errorf("%w: reference and reference_hash must be set together", ErrInvalidMetadata)
	}
	if len(m.ReferenceHash) != 0 && len(m.ReferenceHash) != 32 {
		return fmt.Errorf("%w: reference_hash must be 32 bytes, got %d", ErrInvalidMetadata, len(m.ReferenceHash))
	}
	return nil
}

// Parse decodes YAML metadata and validates it.
func Parse(data []byte) (Metadata, error) {
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if m.Spec == "" {
		m.Spec = SpecVersion
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// LoadFile reads metadata from a YAML file. An empty path yields Default().
func LoadFile(path string) (Metadata, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata file: %w", err)
	}
	return Parse(data)
}
