package wallet

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoWallets      = errors.New("no usable wallets")
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrInvalidKey     = errors.New("invalid private key")
	ErrKeyMismatch    = errors.New("private key does not match address")
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Record is a wallet entry as stored on disk.
type Record struct {
	Address    string `json:"address" yaml:"address"`
	PrivateKey string `json:"private_key" yaml:"private_key"`
}

// Wallet is a validated record. It is immutable once loaded and its string
// form never includes the key.
type Wallet struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) Key() *ecdsa.PrivateKey {
	return w.key
}

func (w *Wallet) String() string {
	return w.address.Hex()
}

// ParseKey decodes a hex private key with or without the 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		// the underlying error can echo key material, keep it out
		return nil, ErrInvalidKey
	}
	return key, nil
}

// FromRecord validates a record: the address must be a hex account address
// and the key must derive that same address.
func FromRecord(rec Record) (*Wallet, error) {
	if !common.IsHexAddress(rec.Address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, rec.Address)
	}
	key, err := ParseKey(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", rec.Address, err)
	}
	derived := crypto.PubkeyToAddress(key.PublicKey)
	if derived != common.HexToAddress(rec.Address) {
		return nil, fmt.Errorf("wallet %s: %w (derived %s)", rec.Address, ErrKeyMismatch, derived.Hex())
	}
	return &Wallet{address: derived, key: key}, nil
}

// FromKey builds a wallet straight from a private key.
func FromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{address: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

// FormatFromPath picks the decoder from the file extension, JSON by default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads the wallet file at path, keeps the first limit entries and
// validates them.
func Load(path string, limit int) ([]*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file: %w", err)
	}
	wallets, err := Decode(bytes.NewReader(data), FormatFromPath(path), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets from %s: %w", path, err)
	}
	return wallets, nil
}

// Decode reads an ordered list of records. Invalid records are skipped with
// a warning; an empty result is an error.
func Decode(r io.Reader, format Format, limit int) ([]*Wallet, error) {
	var records []Record
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&records); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&records); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	}

	if limit > 0 && len(records) > limit {
		logger.Infof("Wallet file has %d entries, using the first %d", len(records), limit)
		records = records[:limit]
	}

	wallets := make([]*Wallet, 0, len(records))
	for i, rec := range records {
		w, err := FromRecord(rec)
		if err != nil {
			logger.Warnf("Skipping wallet #%d: %v", i, err)
			continue
		}
		wallets = append(wallets, w)
	}

	if len(wallets) == 0 {
		return nil, ErrNoWallets
	}
	return wallets, nil
}
