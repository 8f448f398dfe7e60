// Package nodeclient is a thin JSON-RPC client for the girod node.
package nodeclient

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrAlreadyClaimed surfaces the node rejecting a duplicate reward claim.
var ErrAlreadyClaimed = errors.New("nodeclient: reward already claimed")

// ErrInsufficientPool surfaces the reward pool running dry.
var ErrInsufficientPool = errors.New("nodeclient: insufficient reward pool")

// NodeEvent is one sequenced entry from the node event log.
type NodeEvent struct {
	Sequence uint64    `json:"sequence"`
	Event    EventBody `json:"event"`
}

type EventBody struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// ClaimResult reports a successful reward claim.
type ClaimResult struct {
	Wallet string `json:"wallet"`
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
}

// Product mirrors the node marketplace product result.
type Product struct {
	ID          uint64 `json:"id"`
	Seller      string `json:"seller"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"priceInGiro"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	SoldAt      int64  `json:"soldAt,omitempty"`
	Buyer       string `json:"buyer,omitempty"`
}

// Client abstracts the node RPC methods the gateway depends on.
type Client interface {
	ClaimReward(ctx context.Context, wallet, kind string) (*ClaimResult, error)
	CanClaimReward(ctx context.Context, wallet, kind string) (bool, error)
	HasClaimedReward(ctx context.Context, wallet, kind string) (bool, error)
	BalanceOf(ctx context.Context, wallet string) (string, error)
	GetProduct(ctx context.Context, id uint64) (*Product, error)
	ActiveProducts(ctx context.Context) ([]Product, error)
	FetchEvents(ctx context.Context, cursor uint64, limit int) ([]NodeEvent, uint64, error)
}

// RPCClient implements Client against the girod JSON-RPC server.
type RPCClient struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

func New(baseURL, authToken string) *RPCClient {
	return &RPCClient{
		baseURL:   baseURL,
		authToken: authToken,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *RPCClient) ClaimReward(ctx context.Context, wallet, kind string) (*ClaimResult, error) {
	var result ClaimResult
	params := map[string]string{"caller": wallet, "kind": kind}
	if err := c.call(ctx, "giro_claimReward", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RPCClient) CanClaimReward(ctx context.Context, wallet, kind string) (bool, error) {
	var result bool
	params := map[string]string{"wallet": wallet, "kind": kind}
	err := c.call(ctx, "giro_canClaimReward", []interface{}{params}, &result)
	return result, err
}

func (c *RPCClient) HasClaimedReward(ctx context.Context, wallet, kind string) (bool, error) {
	var result bool
	params := map[string]string{"wallet": wallet, "kind": kind}
	err := c.call(ctx, "giro_hasClaimedReward", []interface{}{params}, &result)
	return result, err
}

func (c *RPCClient) BalanceOf(ctx context.Context, wallet string) (string, error) {
	var result struct {
		Address string `json:"address"`
		Balance string `json:"balance"`
	}
	if err := c.call(ctx, "giro_balanceOf", []interface{}{map[string]string{"address": wallet}}, &result); err != nil {
		return "", err
	}
	return result.Balance, nil
}

func (c *RPCClient) GetProduct(ctx context.Context, id uint64) (*Product, error) {
	var result Product
	if err := c.call(ctx, "market_getProduct", []interface{}{map[string]uint64{"id": id}}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RPCClient) ActiveProducts(ctx context.Context) ([]Product, error) {
	var result []Product
	if err := c.call(ctx, "market_getActiveProducts", []interface{}{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *RPCClient) FetchEvents(ctx context.Context, cursor uint64, limit int) ([]NodeEvent, uint64, error) {
	params := map[string]interface{}{"cursor": cursor}
	if limit > 0 {
		params["limit"] = limit
	}
	var result struct {
		Events     []NodeEvent `json:"events"`
		NextCursor uint64      `json:"nextCursor"`
	}
	if err := c.call(ctx, "giro_events", []interface{}{params}, &result); err != nil {
		return nil, cursor, err
	}
	return result.Events, result.NextCursor, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	bodyStruct := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
	buf, err := json.Marshal(bodyStruct)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("node rpc %s failed: status=%d body=%s", method, resp.StatusCode, string(body))
		}
		return err
	}
	if rpcResp.Error != nil {
		return mapRPCError(rpcResp.Error)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func mapRPCError(errObj *jsonRPCErrorObj) error {
	message := strings.ToLower(errObj.Message)
	switch {
	case strings.Contains(message, "already claimed"):
		return ErrAlreadyClaimed
	case strings.Contains(message, "insufficient reward pool"):
		return ErrInsufficientPool
	default:
		return fmt.Errorf("node rpc error: %s", errObj.Message)
	}
}
