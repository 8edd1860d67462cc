package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"toonlab/internal/domain"
	"toonlab/internal/infra"
)

// RPCOptions configures receipt lookups against an EVM JSON-RPC endpoint.
type RPCOptions struct {
	URL string
	// Recipient, when set, must match the receipt's "to" address.
	Recipient      string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// RPCVerifier confirms a payment by fetching the transaction receipt and
// requiring a successful, mined transaction.
type RPCVerifier struct {
	url        string
	recipient  string
	httpClient *http.Client
	logger     *infra.Logger
	nextID     atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type receipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	To              string `json:"to"`
	BlockNumber     string `json:"blockNumber"`
}

// NewRPCVerifier builds a verifier. The endpoint URL is required.
func NewRPCVerifier(opts RPCOptions) (*RPCVerifier, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("payment: rpc url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &RPCVerifier{
		url:        url,
		recipient:  normalizeAddress(opts.Recipient),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (v *RPCVerifier) Verify(ctx context.Context, claim Claim) error {
	hash, err := ValidateTransactionHash(claim.TransactionHash)
	if err != nil {
		return err
	}
	rcpt, err := v.receipt(ctx, hash)
	if err != nil {
		return err
	}
	if rcpt == nil || rcpt.BlockNumber == "" {
		return fmt.Errorf("%w: transaction %s not mined", domain.ErrPaymentRequired, hash)
	}
	if rcpt.Status != "0x1" {
		return fmt.Errorf("%w: transaction %s reverted", domain.ErrPaymentRequired, hash)
	}
	if v.recipient != "" && normalizeAddress(rcpt.To) != v.recipient {
		return fmt.Errorf("%w: transaction %s paid %s", domain.ErrPaymentRequired, hash, rcpt.To)
	}
	v.logger.Info().Str("video_id", claim.VideoID).Str("tx_hash", hash).Str("block", rcpt.BlockNumber).
		Msg("payment: receipt verified")
	return nil
}

// normalizeAddress lowercases an address and drops an optional 0x prefix.
func normalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	return strings.TrimPrefix(addr, "0x")
}

func (v *RPCVerifier) receipt(ctx context.Context, hash string) (*receipt, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      v.nextID.Add(1),
		Method:  "eth_getTransactionReceipt",
		Params:  []any{hash},
	})
	if err != nil {
		return nil, fmt.Errorf("payment: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: rpc request: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read rpc response: %v", domain.ErrUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: rpc status %d", domain.ErrUnavailable, resp.StatusCode)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode rpc response: %v", domain.ErrUnavailable, err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("%w: rpc error %d: %s", domain.ErrUnavailable, decoded.Error.Code, decoded.Error.Message)
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return nil, nil
	}
	var rcpt receipt
	if err := json.Unmarshal(decoded.Result, &rcpt); err != nil {
		return nil, fmt.Errorf("%w: decode receipt: %v", domain.ErrUnavailable, err)
	}
	return &rcpt, nil
}

var _ Verifier = (*RPCVerifier)(nil)
