package dispatcher

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

// mockNode is a minimal JSON-RPC node keeping per-account nonces and
// balances. It applies every accepted raw transaction immediately.
type mockNode struct {
	t       *testing.T
	chainID *big.Int
	server  *httptest.Server

	mu       sync.Mutex
	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
	accepted []*types.Transaction
	calls    map[string]int
}

func newMockNode(t *testing.T, chainID int64) *mockNode {
	n := &mockNode{
		t:        t,
		chainID:  big.NewInt(chainID),
		nonces:   make(map[common.Address]uint64),
		balances: make(map[common.Address]*big.Int),
		calls:    make(map[string]int),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.server.Close)
	return n
}

func (n *mockNode) fund(addr common.Address, wei *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[addr] = new(big.Int).Set(wei)
}

func (n *mockNode) nonce(addr common.Address) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonces[addr]
}

func (n *mockNode) sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.accepted...)
}

func (n *mockNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *mockNode) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	var req struct {
		JsonRPC string            `json:"jsonrpc"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
		ID      json.RawMessage   `json:"id"`
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	assert.NoError(n.t, err)

	result, rpcErr := n.handle(req.Method, req.Params)

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
	}
	if rpcErr != "" {
		response["error"] = map[string]interface{}{"code": -32000, "message": rpcErr}
	} else {
		response["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(response)
	assert.NoError(n.t, err)
}

func (n *mockNode) handle(method string, params []json.RawMessage) (interface{}, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[method]++

	switch method {
	case "eth_chainId":
		return hexutil.EncodeBig(n.chainID), ""
	case "eth_getTransactionCount":
		return hexutil.EncodeUint64(n.nonces[n.addressParam(params)]), ""
	case "eth_getBalance":
		balance := n.balances[n.addressParam(params)]
		if balance == nil {
			balance = new(big.Int)
		}
		return hexutil.EncodeBig(balance), ""
	case "eth_sendRawTransaction":
		return n.applyRaw(params)
	default:
		n.t.Errorf("unexpected RPC method: %s", method)
		return nil, "method not found"
	}
}

func (n *mockNode) addressParam(params []json.RawMessage) common.Address {
	var addr string
	assert.NoError(n.t, json.Unmarshal(params[0], &addr))
	return common.HexToAddress(addr)
}

func (n *mockNode) applyRaw(params []json.RawMessage) (interface{}, string) {
	var rawHex string
	if err := json.Unmarshal(params[0], &rawHex); err != nil {
		return nil, err.Error()
	}
	raw, err := hexutil.Decode(rawHex)
	if err != nil {
		return nil, err.Error()
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, err.Error()
	}
	if tx.ChainId().Cmp(n.chainID) != 0 {
		return nil, "invalid chain id for signer"
	}
	from, err := types.Sender(types.NewEIP155Signer(n.chainID), tx)
	if err != nil {
		return nil, "invalid sender: " + err.Error()
	}

	expected := n.nonces[from]
	switch {
	case tx.Nonce() < expected:
		return nil, "nonce too low"
	case tx.Nonce() > expected:
		return nil, "nonce too high"
	}

	balance := n.balances[from]
	if balance == nil {
		balance = new(big.Int)
	}
	if balance.Cmp(tx.Cost()) < 0 {
		return nil, fmt.Sprintf("insufficient funds for gas * price + value: address %s have %s want %s", from.Hex(), balance, tx.Cost())
	}

	n.balances[from] = new(big.Int).Sub(balance, tx.Cost())
	n.nonces[from] = expected + 1
	n.accepted = append(n.accepted, tx)
	return tx.Hash().Hex(), ""
}

// ether returns whole-unit amounts such as "1.5" in wei.
func ether(t *testing.T, amount string) *big.Int {
	t.Helper()
	parts := strings.SplitN(amount, ".", 2)
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	digits := parts[0] + frac + strings.Repeat("0", 18-len(frac))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		t.Fatalf("bad amount %q", amount)
	}
	return value
}
