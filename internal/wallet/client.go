package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/peridot-net/peridot-chain/pkg/tx"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// UTXOEntry is one spendable output as reported by the node.
type UTXOEntry struct {
	TxHash string    `json:"tx_hash"`
	Index  uint32    `json:"index"`
	Output tx.Output `json:"output"`
}

// Client talks to a node's HTTP control surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the node at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// UTXOByPK fetches the spendable outputs paying the given pk hash.
func (c *Client) UTXOByPK(pkh types.Hash) ([]UTXOEntry, error) {
	resp, err := c.http.Get(c.baseURL + "/mempool/query_utxo_by_pk?pkh=" + url.QueryEscape(pkh.String()))
	if err != nil {
		return nil, fmt.Errorf("query utxo: %w", err)
	}
	defer resp.Body.Close()

	var entries []UTXOEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode utxo response: %w", err)
	}
	return entries, nil
}

// Balance sums the spendable outputs paying the given pk hash.
func (c *Client) Balance(pkh types.Hash) (uint64, error) {
	entries, err := c.UTXOByPK(pkh)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, e := range entries {
		total += e.Output.Value
	}
	return total, nil
}

// submitResponse mirrors the node's {success,message} replies.
type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SubmitTx posts a signed transaction to the node's mempool.
func (c *Client) SubmitTx(stx *tx.SignedTransaction) error {
	payload, err := json.Marshal(stx)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+"/mempool/submit_tx", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("submit transaction: %w", err)
	}
	defer resp.Body.Close()

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode submit response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("node rejected transaction: %s", result.Message)
	}
	return nil
}
