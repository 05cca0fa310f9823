package dispatcher

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/zama-ai/testnet-dispatcher/pkg/currency"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

const (
	// BurnAddress has no known key; value sent there is gone.
	BurnAddress = "0x000000000000000000000000000000000000dEaD"

	DefaultGasLimit = 200000
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidKey        = errors.New("invalid private key")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSigning           = errors.New("signing failed")
)

// ChainClient is the subset of ethclient.Client the dispatcher needs.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Submission is the handle returned for a broadcast transaction. Nothing
// waits for inclusion; Hash is all the caller can follow up on.
type Submission struct {
	Hash     common.Hash
	From     common.Address
	To       common.Address
	Nonce    uint64
	Amount   decimal.Decimal
	Value    *big.Int
	GasPrice *big.Int
	GasLimit uint64
}

// Dispatcher signs and broadcasts native transfers to a fixed destination.
type Dispatcher struct {
	client       ChainClient
	chainID      *big.Int
	signer       types.Signer
	destination  common.Address
	gasLimit     uint64
	gasPricer    GasPricer
	decimals     int32
	balanceCheck bool
}

type Option func(*Dispatcher)

func WithDestination(addr common.Address) Option {
	return func(d *Dispatcher) {
		d.destination = addr
	}
}

func WithGasLimit(limit uint64) Option {
	return func(d *Dispatcher) {
		d.gasLimit = limit
	}
}

func WithGasPricer(pricer GasPricer) Option {
	return func(d *Dispatcher) {
		d.gasPricer = pricer
	}
}

// WithDecimals sets the native unit precision, 18 unless told otherwise.
func WithDecimals(decimals int32) Option {
	return func(d *Dispatcher) {
		d.decimals = decimals
	}
}

// WithBalanceCheck toggles the balance pre-check before signing.
func WithBalanceCheck(enabled bool) Option {
	return func(d *Dispatcher) {
		d.balanceCheck = enabled
	}
}

func New(client ChainClient, chainID *big.Int, opts ...Option) (*Dispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client cannot be nil")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %v", chainID)
	}

	d := &Dispatcher{
		client:       client,
		chainID:      new(big.Int).Set(chainID),
		signer:       types.NewEIP155Signer(chainID),
		destination:  common.HexToAddress(BurnAddress),
		gasLimit:     DefaultGasLimit,
		decimals:     18,
		balanceCheck: true,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.gasPricer == nil {
		pricer, err := NewUniformGasPrice(20, 50, nil)
		if err != nil {
			return nil, err
		}
		d.gasPricer = pricer
	}
	if d.gasLimit == 0 {
		return nil, fmt.Errorf("gas limit must be positive")
	}
	return d, nil
}

func (d *Dispatcher) Destination() common.Address {
	return d.destination
}

func (d *Dispatcher) Signer() types.Signer {
	return d.signer
}

// Dispatch sends amount (in native display units) from the key's account to
// the destination and returns as soon as the node accepts the transaction.
// The nonce is read from the node on every call.
func (d *Dispatcher) Dispatch(ctx context.Context, key *ecdsa.PrivateKey, amount decimal.Decimal) (*Submission, error) {
	if key == nil {
		return nil, ErrInvalidKey
	}
	value, err := d.toValue(amount)
	if err != nil {
		return nil, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := d.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce for %s: %w", from.Hex(), err)
	}

	tx := d.newTx(nonce, value, d.gasPricer.GasPrice())

	if d.balanceCheck {
		balance, err := d.client.BalanceAt(ctx, from, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance for %s: %w", from.Hex(), err)
		}
		if balance.Cmp(tx.Cost()) < 0 {
			return nil, fmt.Errorf("%w: %s has %s wei, needs %s wei", ErrInsufficientFunds, from.Hex(), balance, tx.Cost())
		}
	}

	signed, err := SignTx(tx, d.signer, key)
	if err != nil {
		return nil, err
	}

	if err := d.client.SendTransaction(ctx, signed); err != nil {
		if isInsufficientFunds(err) {
			return nil, fmt.Errorf("%w: broadcast from %s rejected: %v", ErrInsufficientFunds, from.Hex(), err)
		}
		return nil, fmt.Errorf("failed to broadcast transaction from %s (nonce %d): %w", from.Hex(), nonce, err)
	}

	sub := &Submission{
		Hash:     signed.Hash(),
		From:     from,
		To:       d.destination,
		Nonce:    nonce,
		Amount:   amount,
		Value:    value,
		GasPrice: signed.GasPrice(),
		GasLimit: signed.Gas(),
	}
	logger.Debugf("Broadcast %s from %s nonce %d value %s wei gasPrice %s wei", sub.Hash.Hex(), from.Hex(), nonce, value, sub.GasPrice)
	return sub, nil
}

func (d *Dispatcher) newTx(nonce uint64, value, gasPrice *big.Int) *types.Transaction {
	to := d.destination
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      d.gasLimit,
		GasPrice: gasPrice,
	})
}

func (d *Dispatcher) toValue(amount decimal.Decimal) (*big.Int, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount.String())
	}
	value, err := currency.ToBaseUnits(amount, d.decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return value, nil
}

// SignTx signs tx locally. Signatures are deterministic (RFC 6979), so the
// same fields and key always produce the same raw transaction.
func SignTx(tx *types.Transaction, signer types.Signer, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	if key == nil {
		return nil, ErrInvalidKey
	}
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

func isInsufficientFunds(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}
