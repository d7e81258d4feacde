package bridge

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

	perrors "github.com/dusk-indust/polyparse/internal/errors"
)

// Compile-time check.
var _ Caller = (*HTTPCaller)(nil)

// HTTPConfig describes a helper reached over HTTP JSON-RPC.
type HTTPConfig struct {
	URL     string
	Timeout time.Duration
	// Token is sent as a bearer token when set.
	Token string
	// Client replaces the default HTTP client.
	Client *http.Client
}

// HTTPCaller is a Caller that posts JSON-RPC requests to a remote helper.
// A JSON-RPC error is a helper-reported failure, not a transport error.
type HTTPCaller struct {
	cfg       HTTPConfig
	http      *http.Client
	requestID atomic.Int64
}

// NewHTTPCaller returns an HTTPCaller for cfg.
func NewHTTPCaller(cfg HTTPConfig) *HTTPCaller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPCaller{cfg: cfg, http: hc}
}

// Call performs one JSON-RPC call with req.Command as the method.
func (c *HTTPCaller) Call(ctx context.Context, req Request) (*Response, error) {
	req.ID = c.requestID.Add(1)
	params, err := json.Marshal(req)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.Internal, "bridge: marshal params")
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Method:  req.Command,
		Params:  params,
	})
	if err != nil {
		return nil, perrors.Wrap(err, perrors.Internal, "bridge: marshal request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, c.commFailure(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, c.commFailure(err, "%s request %d", req.Command, req.ID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, c.commFailure(fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg)), "%s request %d", req.Command, req.ID)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, c.commFailure(fmt.Errorf("%w: %w", ErrMalformedResponse, err), "decode response")
	}
	if rpcResp.Error != nil {
		return failure(req.ID, ErrorRPC, rpcResp.Error.Message), nil
	}

	var out Response
	if err := json.Unmarshal(rpcResp.Result, &out); err != nil {
		return failure(req.ID, ErrorMalformed, err.Error()), nil
	}
	out.ID = req.ID
	return normalize(&out, req.Command), nil
}

func (c *HTTPCaller) commFailure(err error, format string, args ...any) error {
	return perrors.Wrap(err, perrors.BackendCommunicationFailure,
		fmt.Sprintf("helper %s: ", c.cfg.URL)+fmt.Sprintf(format, args...)).
		WithContext("helper", c.cfg.URL)
}

// Close releases idle connections.
func (c *HTTPCaller) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
