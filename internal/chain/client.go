package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client implements Registry, EmissionSource, BalanceOracle, FeeRouter and
// Payer over HTTP JSON-RPC 2.0. Retries are transport-level only: a retried
// call re-sends the same request, it never re-runs ledger logic.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a JSON-RPC client for the collaborator endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Interval returns the registry epoch interval in seconds.
func (c *Client) Interval(ctx context.Context) (int64, error) {
	var interval int64
	if err := c.call(ctx, "getInterval", nil, &interval); err != nil {
		return 0, err
	}
	return interval, nil
}

// CheckpointPeriod notifies the registry that selfID is checkpointing the
// period containing t.
func (c *Client) CheckpointPeriod(ctx context.Context, selfID string, t int64) error {
	return c.call(ctx, "checkpointPeriod", []interface{}{selfID, t}, nil)
}

// RelativeWeight returns the 1e18-scaled relative weight of selfID at the
// period boundary t.
func (c *Client) RelativeWeight(ctx context.Context, selfID string, t int64) (uint64, error) {
	var weight uint64
	if err := c.call(ctx, "getRelativeWeight", []interface{}{selfID, t}, &weight); err != nil {
		return 0, err
	}
	return weight, nil
}

// VoteForWeight forwards a voter's allocation to the registry.
func (c *Client) VoteForWeight(ctx context.Context, voter string, weightBps uint32) error {
	return c.call(ctx, "voteForWeight", []interface{}{voter, weightBps}, nil)
}

// CurrentRate returns the current emission rate per second.
func (c *Client) CurrentRate(ctx context.Context) (uint64, error) {
	var rate uint64
	if err := c.call(ctx, "getEmissionRate", nil, &rate); err != nil {
		return 0, err
	}
	return rate, nil
}

// RefreshNextRateEpoch advances the emission schedule if due and returns
// the next rate-change boundary.
func (c *Client) RefreshNextRateEpoch(ctx context.Context) (int64, error) {
	var boundary int64
	if err := c.call(ctx, "refreshRateEpoch", nil, &boundary); err != nil {
		return 0, err
	}
	return boundary, nil
}

// TotalVotableBalance returns the total balance account may allocate.
func (c *Client) TotalVotableBalance(ctx context.Context, account string) (uint64, error) {
	var balance uint64
	if err := c.call(ctx, "getVotableBalance", []interface{}{account}, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// RouteFee routes the protocol fee for a settlement of amount in currency
// and returns the fee taken.
func (c *Client) RouteFee(ctx context.Context, currency string, amount uint64) (uint64, error) {
	var fee uint64
	if err := c.call(ctx, "routeFee", []interface{}{currency, amount}, &fee); err != nil {
		return 0, err
	}
	return fee, nil
}

// RouteNativeFee routes the protocol fee for a settlement denominated in
// the native payout asset and returns the fee taken.
func (c *Client) RouteNativeFee(ctx context.Context, amount uint64) (uint64, error) {
	var fee uint64
	if err := c.call(ctx, "routeNativeFee", []interface{}{amount}, &fee); err != nil {
		return 0, err
	}
	return fee, nil
}

// Pay transfers amount of currency to recipient. Zero amounts skip the
// transfer entirely.
func (c *Client) Pay(ctx context.Context, currency, recipient string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return c.call(ctx, "transfer", []interface{}{currency, recipient, amount}, nil)
}
