package network

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/zama-ai/testnet-dispatcher/pkg/config"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

var (
	ErrUnreachable   = errors.New("network endpoint unreachable")
	ErrChainMismatch = errors.New("endpoint chain id does not match configuration")
)

// Client is the run-scoped connection to a JSON-RPC node. It is built once,
// shared read-only and closed at shutdown.
type Client struct {
	*ethclient.Client
	rpc     *rpc.Client
	url     string
	chainID *big.Int
	closed  atomic.Bool
}

// Endpoint describes how to reach a single node URL.
type Endpoint struct {
	URL           string
	SSLVerify     bool
	Authorization *config.Authorization
	Timeout       time.Duration
}

// Dial opens an RPC client for the endpoint without probing it.
func Dial(ctx context.Context, endpoint Endpoint) (*Client, error) {
	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: !endpoint.SSLVerify}},
		Timeout:   timeout,
	}

	opts := []rpc.ClientOption{rpc.WithHTTPClient(httpClient)}
	if auth := endpoint.Authorization; auth != nil && auth.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		opts = append(opts, rpc.WithHTTPAuth(func(h http.Header) error {
			h.Set("Authorization", fmt.Sprintf("Basic %s", creds))
			return nil
		}))
	}

	rpcClient, err := rpc.DialOptions(ctx, endpoint.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", redact(endpoint.URL), err)
	}

	return &Client{
		Client: ethclient.NewClient(rpcClient),
		rpc:    rpcClient,
		url:    endpoint.URL,
	}, nil
}

// Connect dials the configured primary endpoint, then the fallback, probing
// each with eth_chainId up to ConnectAttempts times with a fixed delay.
func Connect(ctx context.Context, cfg *config.Network) (*Client, error) {
	expected := cfg.ChainIDValue()
	var lastErr error

	for _, url := range cfg.Endpoints() {
		endpoint := Endpoint{
			URL:           url,
			SSLVerify:     cfg.HttpSSLVerify != "false",
			Authorization: cfg.Authorization,
			Timeout:       cfg.Timeout,
		}

		for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
			client, err := probe(ctx, endpoint, expected)
			if err == nil {
				logger.Infof("Connected to %s at %s (chain id %s)", cfg.Name, redact(url), client.chainID)
				return client, nil
			}
			if errors.Is(err, ErrChainMismatch) {
				return nil, err
			}
			lastErr = err
			logger.Warnf("Attempt %d of %d to connect to %s failed: %v", attempt, cfg.ConnectAttempts, redact(url), err)

			if attempt == cfg.ConnectAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
			case <-time.After(cfg.ConnectDelay):
			}
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts per endpoint: %v", ErrUnreachable, cfg.Name, cfg.ConnectAttempts, lastErr)
}

func probe(ctx context.Context, endpoint Endpoint, expected *big.Int) (*Client, error) {
	client, err := Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	if expected != nil && chainID.Cmp(expected) != 0 {
		client.Close()
		return nil, fmt.Errorf("%w: %s reports %s, configured %s", ErrChainMismatch, redact(endpoint.URL), chainID, expected)
	}
	client.chainID = chainID
	return client, nil
}

// ChainIDValue returns the chain id reported by the node at connect time.
func (c *Client) ChainIDValue() *big.Int {
	if c.chainID == nil {
		return nil
	}
	return new(big.Int).Set(c.chainID)
}

// URL returns the connected endpoint with any path secrets removed.
func (c *Client) URL() string {
	return redact(c.url)
}

// Ping checks that the endpoint still answers.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New("client closed")
	}
	_, err := c.ChainID(ctx)
	return err
}

// Close releases the connection. It is safe to call more than once.
func (c *Client) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.Client.Close()
}

// redact drops everything after the host, where hosted RPC providers put API keys.
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	authority, path, hasPath := strings.Cut(rest, "/")
	host := authority
	if _, after, found := strings.Cut(authority, "@"); found {
		host = after
	}
	if hasPath && path != "" {
		return scheme + "://" + host + "/..."
	}
	return scheme + "://" + host
}
