// Package rpcclient provides a JSON-RPC 2.0 client for launchpad nodes.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// CodeReverted is the server's error code for a recorded but failed call.
const CodeReverted = -32001

const defaultTimeout = 10 * time.Second

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// New creates a client for endpoint with a ten second timeout.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, defaultTimeout)
}

// NewWithTimeout creates a client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	ID     int64           `json:"id"`
}

// RPCError is returned when the server responds with an error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"` // Receipt of a reverted call, if any.
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsReverted reports whether err is a call that was recorded but failed.
func IsReverted(err error) bool {
	var re *RPCError
	return errors.As(err, &re) && re.Code == CodeReverted
}

// Call invokes method and decodes the result into result, which may be
// nil to discard it.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext is Call bounded by ctx.
func (c *Client) CallContext(ctx context.Context, method string, params, result interface{}) error {
	req := c.newRequest(method, params)
	var resp response
	if err := c.post(ctx, req, &resp); err != nil {
		return err
	}
	return resp.decode(result)
}

// BatchElem is one call of a batch. Error is set per element after
// BatchCall returns.
type BatchElem struct {
	Method string
	Params interface{}
	Result interface{}
	Error  error
}

// BatchCall sends elems in one HTTP request. The returned error covers
// transport failures only; per-call failures land in each element.
func (c *Client) BatchCall(ctx context.Context, elems []BatchElem) error {
	if len(elems) == 0 {
		return nil
	}
	reqs := make([]request, len(elems))
	byID := make(map[int64]int, len(elems))
	for i, e := range elems {
		reqs[i] = c.newRequest(e.Method, e.Params)
		byID[reqs[i].ID] = i
	}

	var resps []response
	if err := c.post(ctx, reqs, &resps); err != nil {
		return err
	}
	seen := make(map[int]bool, len(resps))
	for _, r := range resps {
		i, ok := byID[r.ID]
		if !ok {
			continue
		}
		seen[i] = true
		elems[i].Error = r.decode(elems[i].Result)
	}
	for i := range elems {
		if !seen[i] {
			elems[i].Error = fmt.Errorf("no response for %s", elems[i].Method)
		}
	}
	return nil
}

func (c *Client) newRequest(method string, params interface{}) request {
	return request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID.Add(1)}
}

// post sends body and decodes the reply into out.
func (c *Client) post(ctx context.Context, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("http request: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		// A batch rejected as a whole comes back as a single error object.
		var single response
		if json.Unmarshal(data, &single) == nil && single.Error != nil {
			return single.Error
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *response) decode(result interface{}) error {
	if r.Error != nil {
		return r.Error
	}
	if result == nil || r.Result == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
