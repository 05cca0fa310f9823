package config

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zama-ai/testnet-dispatcher/pkg/currency"
	"gopkg.in/yaml.v2"
)

const (
	DefaultChainID         = "50312"
	DefaultUnit            = "STT"
	DefaultBurnAddress     = "0x000000000000000000000000000000000000dEaD"
	DefaultGasLimit        = 200000
	DefaultWalletLimit     = 100
	DefaultConnectAttempts = 3
	DefaultSchedule        = "@every 24h"
	DefaultRpcURLEnv       = "RPC_URL"
	DefaultChainIDEnv      = "CHAIN_ID"
	DefaultAmountPrecision = 3
	DefaultFaucetRetries   = 2
)

type Schema struct {
	Global   Global   `yaml:"global"`
	Network  Network  `yaml:"network"`
	Dispatch Dispatch `yaml:"dispatch"`
	Wallets  Wallets  `yaml:"wallets"`
	Pacing   Pacing   `yaml:"pacing"`
	Faucet   *Faucet  `yaml:"faucet"`
	Schedule Schedule `yaml:"schedule"`
}

type Global struct {
	Environment string `yaml:"environment"`
	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`
}

type Network struct {
	Name              string         `yaml:"name"`
	RpcURL            string         `yaml:"rpcUrl"`
	RpcURLEnv         string         `yaml:"rpcUrlEnv"`
	FallbackRpcURL    string         `yaml:"fallbackRpcUrl"`
	FallbackRpcURLEnv string         `yaml:"fallbackRpcUrlEnv"`
	ChainID           string         `yaml:"chainId"`
	ChainIDEnv        string         `yaml:"chainIdEnv"`
	Unit              string         `yaml:"unit"`
	UnitDecimals      *int32         `yaml:"unitDecimals"`
	MetricsUnit       *currency.Unit `yaml:"metricsUnit"` // defaults to Unit
	HttpSSLVerify     string         `yaml:"httpSSLVerify"`
	Authorization     *Authorization `yaml:"authorization"`
	ConnectAttempts   int            `yaml:"connectAttempts"`
	ConnectDelay      time.Duration  `yaml:"connectDelay"`
	Timeout           time.Duration  `yaml:"timeout"`

	// parsed from ChainID by Normalize
	chainID *big.Int
}

type Authorization struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Dispatch struct {
	Destination  string        `yaml:"destination"`
	GasLimit     uint64        `yaml:"gasLimit"`
	GasPriceGwei GasPriceRange `yaml:"gasPriceGwei"`
	Amount       AmountRange   `yaml:"amount"`
	TxPerWallet  IntRange      `yaml:"txPerWallet"`
	BalanceCheck *bool         `yaml:"balanceCheck"`
}

type GasPriceRange struct {
	Min uint64 `yaml:"min"`
	Max uint64 `yaml:"max"`
}

// AmountRange holds amounts as strings so they keep their exact decimal value.
// Precision is a pointer so an explicit 0 (whole units) is kept.
type AmountRange struct {
	Min       string `yaml:"min"`
	Max       string `yaml:"max"`
	Precision *int32 `yaml:"precision"`

	min decimal.Decimal
	max decimal.Decimal
}

type IntRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type Wallets struct {
	Path    string `yaml:"path"`
	PathEnv string `yaml:"pathEnv"`
	Limit   int    `yaml:"limit"`
}

// Pacing ranges are only defaulted when absent; a zero range disables the pause.
type Pacing struct {
	BetweenTransactions *DurationRange `yaml:"betweenTransactions"`
	BetweenWallets      *DurationRange `yaml:"betweenWallets"`
	MaxPerMinute        float64        `yaml:"maxPerMinute"`
}

type DurationRange struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

type Faucet struct {
	Enabled             bool          `yaml:"enabled"`
	URL                 string        `yaml:"url"`
	URLEnv              string        `yaml:"urlEnv"`
	Timeout             int           `yaml:"timeout"` // Timeout in seconds, default 30
	Retries             *int          `yaml:"retries"` // 0 disables retries, default 2
	WaitForConfirmation bool          `yaml:"waitForConfirmation"`
	ConfirmationTimeout time.Duration `yaml:"confirmationTimeout"`
}

type Schedule struct {
	Cron       string `yaml:"cron"`
	RunOnStart *bool  `yaml:"runOnStart"`
}

func (s *Schema) Normalize() error {
	if s.Global.LogLevel == "" {
		s.Global.LogLevel = "info"
	}
	if err := s.Network.Normalize(); err != nil {
		return fmt.Errorf("failed to normalize network %s: %w", s.Network.Name, err)
	}
	if err := s.Dispatch.Normalize(); err != nil {
		return fmt.Errorf("failed to normalize dispatch config: %w", err)
	}
	s.Wallets.Normalize()
	s.Pacing.Normalize()
	if s.Faucet != nil {
		s.Faucet.Normalize()
	}
	if s.Schedule.Cron == "" {
		s.Schedule.Cron = DefaultSchedule
	}
	if s.Schedule.RunOnStart == nil {
		runOnStart := true
		s.Schedule.RunOnStart = &runOnStart
	}
	return nil
}

// Normalize applies env overrides and defaults, then parses the chain id.
// A non-numeric chain id is rejected here, before anything dials the network.
func (n *Network) Normalize() error {
	if n.RpcURLEnv == "" {
		n.RpcURLEnv = DefaultRpcURLEnv
	}
	if n.ChainIDEnv == "" {
		n.ChainIDEnv = DefaultChainIDEnv
	}
	n.RpcURL = fromEnv(n.RpcURLEnv, n.RpcURL)
	n.FallbackRpcURL = fromEnv(n.FallbackRpcURLEnv, n.FallbackRpcURL)
	n.ChainID = strings.TrimSpace(fromEnv(n.ChainIDEnv, n.ChainID))

	if n.ChainID == "" {
		n.ChainID = DefaultChainID
	}
	chainID, ok := new(big.Int).SetString(n.ChainID, 10)
	if !ok || chainID.Sign() <= 0 {
		return fmt.Errorf("invalid chainId %q: must be a positive integer (e.g. %s)", n.ChainID, DefaultChainID)
	}
	n.chainID = chainID

	if n.Unit == "" {
		n.Unit = DefaultUnit
	}
	if n.UnitDecimals == nil {
		decimals := int32(18)
		n.UnitDecimals = &decimals
	}
	if n.ConnectAttempts <= 0 {
		n.ConnectAttempts = DefaultConnectAttempts
	}
	if n.ConnectDelay == 0 {
		n.ConnectDelay = 2 * time.Second
	}
	if n.Timeout == 0 {
		n.Timeout = 10 * time.Second
	}
	return nil
}

// ChainIDValue returns the parsed chain id. Only valid after Normalize.
func (n *Network) ChainIDValue() *big.Int {
	if n.chainID == nil {
		return nil
	}
	return new(big.Int).Set(n.chainID)
}

// Endpoints returns the primary URL followed by the fallback, if any.
func (n *Network) Endpoints() []string {
	endpoints := []string{n.RpcURL}
	if n.FallbackRpcURL != "" && n.FallbackRpcURL != n.RpcURL {
		endpoints = append(endpoints, n.FallbackRpcURL)
	}
	return endpoints
}

func (d *Dispatch) Normalize() error {
	if d.Destination == "" {
		d.Destination = DefaultBurnAddress
	}
	if d.GasLimit == 0 {
		d.GasLimit = DefaultGasLimit
	}
	if d.GasPriceGwei.Min == 0 && d.GasPriceGwei.Max == 0 {
		d.GasPriceGwei = GasPriceRange{Min: 20, Max: 50}
	}
	if d.TxPerWallet.Min == 0 && d.TxPerWallet.Max == 0 {
		d.TxPerWallet = IntRange{Min: 1, Max: 2}
	}
	if d.BalanceCheck == nil {
		balanceCheck := true
		d.BalanceCheck = &balanceCheck
	}
	return d.Amount.Normalize()
}

func (a *AmountRange) Normalize() error {
	if a.Min == "" && a.Max == "" {
		a.Min, a.Max = "0.015", "0.09"
	}
	if a.Precision == nil {
		precision := int32(DefaultAmountPrecision)
		a.Precision = &precision
	}
	var err error
	if a.min, err = decimal.NewFromString(a.Min); err != nil {
		return fmt.Errorf("invalid amount.min %q: %w", a.Min, err)
	}
	if a.max, err = decimal.NewFromString(a.Max); err != nil {
		return fmt.Errorf("invalid amount.max %q: %w", a.Max, err)
	}
	return nil
}

// Bounds returns the parsed amount range. Only valid after Normalize.
func (a *AmountRange) Bounds() (decimal.Decimal, decimal.Decimal) {
	return a.min, a.max
}

func (w *Wallets) Normalize() {
	w.Path = fromEnv(w.PathEnv, w.Path)
	if w.Path == "" {
		w.Path = "wallets.json"
	}
	if w.Limit <= 0 {
		w.Limit = DefaultWalletLimit
	}
}

func (p *Pacing) Normalize() {
	if p.BetweenTransactions == nil {
		p.BetweenTransactions = &DurationRange{Min: 5 * time.Second, Max: 15 * time.Second}
	}
	if p.BetweenWallets == nil {
		p.BetweenWallets = &DurationRange{Min: time.Minute, Max: 5 * time.Minute}
	}
}

func (f *Faucet) Normalize() {
	f.URL = fromEnv(f.URLEnv, f.URL)
	if f.Timeout == 0 {
		f.Timeout = 30 // Default timeout of 30 seconds
	}
	if f.Retries == nil {
		retries := DefaultFaucetRetries
		f.Retries = &retries
	}
	if f.ConfirmationTimeout == 0 {
		f.ConfirmationTimeout = time.Minute
	}
}

// IsFaucetEnabled reports whether faucet claims are configured
func (s *Schema) IsFaucetEnabled() bool {
	return s.Faucet != nil && s.Faucet.Enabled && s.Faucet.URL != ""
}

func fromEnv(key, fallback string) string {
	if key == "" {
		return fallback
	}
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func ReadConfigWithError(r io.Reader) (*Schema, error) {
	config := &Schema{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Normalize(); err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}
	return config, nil
}

func ReadConfigFile(path string) (*Schema, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return ReadConfigWithError(file)
}
