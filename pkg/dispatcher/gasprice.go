package dispatcher

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"

	"github.com/ethereum/go-ethereum/params"
)

// GasPricer yields the gas price for the next transaction.
type GasPricer interface {
	GasPrice() *big.Int
}

// UniformGasPrice draws gas prices uniformly, in wei, from an inclusive range.
type UniformGasPrice struct {
	min  *big.Int
	span int64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewUniformGasPrice builds a sampler over [minGwei, maxGwei]. A nil rnd uses
// a randomly seeded source.
func NewUniformGasPrice(minGwei, maxGwei uint64, rnd *rand.Rand) (*UniformGasPrice, error) {
	gwei := big.NewInt(params.GWei)
	min := new(big.Int).Mul(new(big.Int).SetUint64(minGwei), gwei)
	max := new(big.Int).Mul(new(big.Int).SetUint64(maxGwei), gwei)
	return NewUniformGasPriceWei(min, max, rnd)
}

func NewUniformGasPriceWei(min, max *big.Int, rnd *rand.Rand) (*UniformGasPrice, error) {
	if min.Sign() <= 0 || max.Cmp(min) < 0 {
		return nil, fmt.Errorf("invalid gas price range [%s, %s] wei", min, max)
	}
	span := new(big.Int).Sub(max, min)
	if !span.IsInt64() || span.Int64() == 1<<63-1 {
		return nil, fmt.Errorf("gas price range [%s, %s] wei is too wide", min, max)
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &UniformGasPrice{
		min:  new(big.Int).Set(min),
		span: span.Int64(),
		rnd:  rnd,
	}, nil
}

func (g *UniformGasPrice) GasPrice() *big.Int {
	g.mu.Lock()
	offset := g.rnd.Int64N(g.span + 1)
	g.mu.Unlock()
	return new(big.Int).Add(g.min, big.NewInt(offset))
}

// Bounds returns the inclusive range in wei.
func (g *UniformGasPrice) Bounds() (*big.Int, *big.Int) {
	return new(big.Int).Set(g.min), new(big.Int).Add(g.min, big.NewInt(g.span))
}
