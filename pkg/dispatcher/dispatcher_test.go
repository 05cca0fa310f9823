package dispatcher

import (
	"context"
	"math/big"
	"math/rand/v2"
	"regexp"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

const testChainID = 50312

var hashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

func init() {
	_ = logger.InitLogger()
}

type fixedGasPrice struct {
	price *big.Int
}

func (f fixedGasPrice) GasPrice() *big.Int {
	return new(big.Int).Set(f.price)
}

func setupDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *mockNode) {
	t.Helper()
	node := newMockNode(t, testChainID)

	client, err := ethclient.Dial(node.server.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	d, err := New(client, big.NewInt(testChainID), opts...)
	require.NoError(t, err)
	return d, node
}

func TestDispatchValueMatchesAmount(t *testing.T) {
	cases := []string{"0.001", "0.015", "0.02", "0.09", "0.1"}

	for _, amount := range cases {
		t.Run(amount, func(t *testing.T) {
			d, node := setupDispatcher(t)
			key, err := crypto.GenerateKey()
			require.NoError(t, err)
			from := crypto.PubkeyToAddress(key.PublicKey)
			node.fund(from, ether(t, "1"))

			sub, err := d.Dispatch(context.Background(), key, decimal.RequireFromString(amount))
			require.NoError(t, err)

			assert.Equal(t, ether(t, amount).String(), sub.Value.String())

			sent := node.sent()
			require.Len(t, sent, 1)
			assert.Equal(t, ether(t, amount).String(), sent[0].Value().String())
		})
	}
}

func TestDispatchSequentialNonces(t *testing.T) {
	d, node := setupDispatcher(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	node.fund(from, ether(t, "1"))

	for want := uint64(0); want < 3; want++ {
		sub, err := d.Dispatch(context.Background(), key, decimal.RequireFromString("0.015"))
		require.NoError(t, err)
		assert.Equal(t, want, sub.Nonce)
	}

	assert.Equal(t, uint64(3), node.nonce(from))
	for i, tx := range node.sent() {
		assert.Equal(t, uint64(i), tx.Nonce())
	}
}

func TestDispatchFundedSender(t *testing.T) {
	d, node := setupDispatcher(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	node.fund(from, ether(t, "1"))

	sub, err := d.Dispatch(context.Background(), key, decimal.RequireFromString("0.02"))
	require.NoError(t, err)

	assert.Regexp(t, hashPattern, sub.Hash.Hex())
	assert.Equal(t, from, sub.From)
	assert.Equal(t, common.HexToAddress(BurnAddress), sub.To)
	assert.Equal(t, uint64(DefaultGasLimit), sub.GasLimit)
	assert.Equal(t, uint64(1), node.nonce(from))

	sent := node.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sub.Hash, sent[0].Hash())
	require.NotNil(t, sent[0].To())
	assert.Equal(t, common.HexToAddress(BurnAddress), *sent[0].To())
	assert.Equal(t, types.LegacyTxType, int(sent[0].Type()))
}

func TestDispatchRecoversSender(t *testing.T) {
	d, node := setupDispatcher(t)
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	node.fund(from, ether(t, "1"))

	_, err = d.Dispatch(context.Background(), key, decimal.RequireFromString("0.05"))
	require.NoError(t, err)

	sent := node.sent()
	require.Len(t, sent, 1)
	sender, err := types.Sender(d.Signer(), sent[0])
	require.NoError(t, err)
	assert.Equal(t, from, sender)
	assert.Equal(t, big.NewInt(testChainID), sent[0].ChainId())
}

func TestSignTxDeterministic(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress(BurnAddress)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    7,
		To:       &to,
		Value:    big.NewInt(15_000_000_000_000_000),
		Gas:      DefaultGasLimit,
		GasPrice: big.NewInt(25_000_000_000),
	})
	signer := types.NewEIP155Signer(big.NewInt(testChainID))

	first, err := SignTx(tx, signer, key)
	require.NoError(t, err)
	second, err := SignTx(tx, signer, key)
	require.NoError(t, err)

	assert.Equal(t, first.Hash(), second.Hash())

	sender, err := types.Sender(signer, first)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)

	_, err = SignTx(tx, signer, nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDispatchGasPriceWithinBounds(t *testing.T) {
	pricer, err := NewUniformGasPrice(20, 50, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	d, node := setupDispatcher(t, WithGasPricer(pricer))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	node.fund(crypto.PubkeyToAddress(key.PublicKey), ether(t, "10"))

	min, max := pricer.Bounds()
	for i := 0; i < 5; i++ {
		sub, err := d.Dispatch(context.Background(), key, decimal.RequireFromString("0.015"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sub.GasPrice.Cmp(min), 0)
		assert.LessOrEqual(t, sub.GasPrice.Cmp(max), 0)
	}
}

func TestDispatchInsufficientFunds(t *testing.T) {
	t.Run("pre-check", func(t *testing.T) {
		d, node := setupDispatcher(t)
		key, err := crypto.GenerateKey()
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), key, decimal.RequireFromString("0.05"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Empty(t, node.sent())
		assert.Equal(t, 0, node.callCount("eth_sendRawTransaction"))
	})

	t.Run("node rejection", func(t *testing.T) {
		d, node := setupDispatcher(t, WithBalanceCheck(false))
		key, err := crypto.GenerateKey()
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), key, decimal.RequireFromString("0.05"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Empty(t, node.sent())
		assert.Equal(t, 1, node.callCount("eth_sendRawTransaction"))
	})

	t.Run("value covered but not gas", func(t *testing.T) {
		d, node := setupDispatcher(t, WithGasPricer(fixedGasPrice{price: big.NewInt(20_000_000_000)}))
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		node.fund(crypto.PubkeyToAddress(key.PublicKey), ether(t, "0.05"))

		_, err = d.Dispatch(context.Background(), key, decimal.RequireFromString("0.05"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Empty(t, node.sent())
	})
}

func TestDispatchInvalidInput(t *testing.T) {
	d, _ := setupDispatcher(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), nil, decimal.RequireFromString("0.02"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	for _, amount := range []string{"0", "-0.5", "0.0000000000000000001"} {
		_, err = d.Dispatch(context.Background(), key, decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
}

func TestDispatchUnreachableNode(t *testing.T) {
	node := newMockNode(t, testChainID)
	client, err := ethclient.Dial(node.server.URL)
	require.NoError(t, err)
	defer client.Close()
	node.server.Close()

	d, err := New(client, big.NewInt(testChainID))
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), key, decimal.RequireFromString("0.02"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get nonce")
}

func TestNewValidation(t *testing.T) {
	node := newMockNode(t, testChainID)
	client, err := ethclient.Dial(node.server.URL)
	require.NoError(t, err)
	defer client.Close()

	_, err = New(nil, big.NewInt(testChainID))
	assert.Error(t, err)

	_, err = New(client, big.NewInt(0))
	assert.Error(t, err)

	_, err = New(client, big.NewInt(testChainID), WithGasLimit(0))
	assert.Error(t, err)

	dest := common.HexToAddress("0x1111111111111111111111111111111111111111")
	d, err := New(client, big.NewInt(testChainID), WithDestination(dest))
	require.NoError(t, err)
	assert.Equal(t, dest, d.Destination())
}

func TestUniformGasPrice(t *testing.T) {
	_, err := NewUniformGasPrice(0, 10, nil)
	assert.Error(t, err)

	_, err = NewUniformGasPrice(50, 20, nil)
	assert.Error(t, err)

	fixed, err := NewUniformGasPrice(30, 30, nil)
	require.NoError(t, err)
	assert.Equal(t, "30000000000", fixed.GasPrice().String())

	pricer, err := NewUniformGasPrice(20, 50, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	min, max := pricer.Bounds()
	assert.Equal(t, "20000000000", min.String())
	assert.Equal(t, "50000000000", max.String())
	for i := 0; i < 500; i++ {
		p := pricer.GasPrice()
		assert.True(t, p.Cmp(min) >= 0 && p.Cmp(max) <= 0, p.String())
	}
}
