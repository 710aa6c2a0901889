package electrum

import (
	"context"

	"github.com/pkg/errors"
)

const (
	methodGetBalance     = "blockchain.scripthash.get_balance"
	methodGetHistory     = "blockchain.scripthash.get_history"
	methodListUnspent    = "blockchain.scripthash.listunspent"
	methodGetTransaction = "blockchain.transaction.get"
	methodBroadcast      = "blockchain.transaction.broadcast"
	methodEstimateFee    = "blockchain.estimatefee"
	methodPing           = "server.ping"
	methodServerVersion  = "server.version"
)

// RPC is the subset of the electrum protocol used by the wallet.
type RPC interface {
	GetBalance(ctx context.Context, address string) (*GetBalanceResult, error)
	GetHistory(ctx context.Context, address string) ([]*GetHistoryResult, error)
	ListUnspent(ctx context.Context, address string) ([]*ListUnspentResult, error)
	GetTransaction(ctx context.Context, txHash string) (*GetTransactionResult, error)
	EstimateFee(ctx context.Context, targetBlocks uint32) (float64, error)
	BroadcastTransaction(ctx context.Context, rawTx string) (string, error)
}

var _ RPC = (*Client)(nil)

// GetBalanceResult holds confirmed and unconfirmed balance in sats. The
// unconfirmed part is negative for outgoing mempool spends.
type GetBalanceResult struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// GetHistoryResult is one transaction touching a script hash. Height is 0 or
// -1 for mempool transactions.
type GetHistoryResult struct {
	Hash   string `json:"tx_hash"`
	Height int32  `json:"height"`
	Fee    uint64 `json:"fee,omitempty"`
}

// ListUnspentResult is one unspent output of a script hash.
type ListUnspentResult struct {
	Hash     string `json:"tx_hash"`
	Position uint32 `json:"tx_pos"`
	Value    uint64 `json:"value"`
	Height   int32  `json:"height"`
}

type ScriptPubKey struct {
	Asm     string `json:"asm"`
	Hex     string `json:"hex"`
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
}

type Vout struct {
	Value        float64      `json:"value"`
	N            uint32       `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// GetTransactionResult is the verbose form of a transaction. Hex carries the
// exact serialization and is what amounts and scripts are read from.
type GetTransactionResult struct {
	TxID          string `json:"txid"`
	Hash          string `json:"hash"`
	Hex           string `json:"hex"`
	Size          uint32 `json:"size"`
	VSize         uint32 `json:"vsize"`
	Version       int32  `json:"version"`
	LockTime      uint32 `json:"locktime"`
	BlockHash     string `json:"blockhash,omitempty"`
	Confirmations uint32 `json:"confirmations,omitempty"`
	Time          int64  `json:"time,omitempty"`
	Vout          []Vout `json:"vout"`
}

func (c *Client) GetBalance(ctx context.Context, address string) (*GetBalanceResult, error) {
	scripthash, err := c.GetScriptHash(address)
	if err != nil {
		return nil, err
	}
	var resp GetBalanceResult
	if err := c.request(ctx, methodGetBalance, &resp, scripthash); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetHistory(ctx context.Context, address string) ([]*GetHistoryResult, error) {
	scripthash, err := c.GetScriptHash(address)
	if err != nil {
		return nil, err
	}
	var resp []*GetHistoryResult
	if err := c.request(ctx, methodGetHistory, &resp, scripthash); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListUnspent returns the unspent outputs of address in the order the server
// returned them.
func (c *Client) ListUnspent(ctx context.Context, address string) ([]*ListUnspentResult, error) {
	scripthash, err := c.GetScriptHash(address)
	if err != nil {
		return nil, err
	}
	var resp []*ListUnspentResult
	if err := c.request(ctx, methodListUnspent, &resp, scripthash); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetTransaction(ctx context.Context, txHash string) (*GetTransactionResult, error) {
	var resp GetTransactionResult
	if err := c.request(ctx, methodGetTransaction, &resp, txHash, true); err != nil {
		return nil, err
	}
	if resp.Hex == "" {
		return nil, errors.Wrapf(ErrProtocol, "transaction %s returned without hex", txHash)
	}
	return &resp, nil
}

// EstimateFee returns the fee rate estimate in BTC/kB for confirmation within
// targetBlocks. A negative value means the server has no estimate.
func (c *Client) EstimateFee(ctx context.Context, targetBlocks uint32) (float64, error) {
	var resp float64
	if err := c.request(ctx, methodEstimateFee, &resp, targetBlocks); err != nil {
		return 0, err
	}
	return resp, nil
}

// BroadcastTransaction submits rawTx and returns the txid reported by the
// server.
func (c *Client) BroadcastTransaction(ctx context.Context, rawTx string) (string, error) {
	var resp string
	if err := c.request(ctx, methodBroadcast, &resp, rawTx); err != nil {
		return "", err
	}
	return resp, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, methodPing, nil)
}

// ServerVersion negotiates the protocol version and returns the server
// software and protocol version strings.
func (c *Client) ServerVersion(ctx context.Context, clientName, protocolVersion string) ([]string, error) {
	var resp []string
	if err := c.request(ctx, methodServerVersion, &resp, clientName, protocolVersion); err != nil {
		return nil, err
	}
	return resp, nil
}
