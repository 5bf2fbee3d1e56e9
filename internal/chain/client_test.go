package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_Interval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "getInterval" {
			t.Errorf("expected method getInterval, got %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(604800),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	interval, err := client.Interval(ctx)
	if err != nil {
		t.Fatalf("Interval: %v", err)
	}

	if interval != 604800 {
		t.Errorf("expected interval 604800, got %d", interval)
	}
}

func TestClient_RelativeWeight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "getRelativeWeight" {
			t.Errorf("expected method getRelativeWeight, got %s", req.Method)
		}

		if len(req.Params) != 2 {
			t.Fatalf("expected 2 params, got %d", len(req.Params))
		}

		if req.Params[0] != "self1" {
			t.Errorf("expected selfID self1, got %v", req.Params[0])
		}

		w.Header().Set("Content-Type", "application/json")
		// Raw JSON keeps the full 1e18-scaled value intact
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":250000000000000000}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	weight, err := client.RelativeWeight(ctx, "self1", 604800)
	if err != nil {
		t.Fatalf("RelativeWeight: %v", err)
	}

	if weight != 250000000000000000 {
		t.Errorf("expected weight 250000000000000000, got %d", weight)
	}
}

func TestClient_VoteForWeight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "voteForWeight" {
			t.Errorf("expected method voteForWeight, got %s", req.Method)
		}

		if len(req.Params) != 2 {
			t.Fatalf("expected 2 params, got %d", len(req.Params))
		}

		if req.Params[0] != "voter1" {
			t.Errorf("expected voter voter1, got %v", req.Params[0])
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "ok",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	if err := client.VoteForWeight(ctx, "voter1", 5000); err != nil {
		t.Fatalf("VoteForWeight: %v", err)
	}
}

func TestClient_Pay_ZeroAmountSkipsTransport(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	if err := client.Pay(ctx, "cur1", "rcpt1", 0); err != nil {
		t.Fatalf("Pay: %v", err)
	}

	if calls.Load() != 0 {
		t.Errorf("expected no HTTP calls for zero amount, got %d", calls.Load())
	}

	if err := client.Pay(ctx, "cur1", "rcpt1", 50); err != nil {
		t.Fatalf("Pay: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("expected 1 HTTP call, got %d", calls.Load())
	}
}

func TestClient_RPCErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"transfer failed"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond))
	ctx := context.Background()

	err := client.Pay(ctx, "cur1", "rcpt1", 10)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt for RPC error, got %d", attempts.Load())
	}
}

func TestClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  uint64(42),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond))
	ctx := context.Background()

	rate, err := client.CurrentRate(ctx)
	if err != nil {
		t.Fatalf("CurrentRate: %v", err)
	}

	if rate != 42 {
		t.Errorf("expected rate 42, got %d", rate)
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(1), WithRetryDelay(time.Millisecond))
	ctx := context.Background()

	if _, err := client.TotalVotableBalance(ctx, "acct1"); err == nil {
		t.Fatal("expected error after retries exhausted, got nil")
	}
}
