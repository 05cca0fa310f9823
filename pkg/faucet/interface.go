package faucet

import (
	"context"
)

// Claimer defines the interface for a faucet client.
type Claimer interface {
	ClaimWithRetry(ctx context.Context, address string, retries int) (*Result, error)
}
