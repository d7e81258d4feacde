package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/dusk-indust/polyparse/internal/errors"
)

// stubCaller answers from a function and records what it saw.
type stubCaller struct {
	mu   sync.Mutex
	seen []Request
	fn   func(Request) (*Response, error)
}

func (s *stubCaller) Call(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.seen = append(s.seen, req)
	s.mu.Unlock()
	return s.fn(req)
}

func (s *stubCaller) Close() error { return nil }

func ok(req Request) *Response {
	yes := true
	ast, _ := json.Marshal(map[string]string{"_type": "Module", "echo": req.Content})
	return &Response{ID: req.ID, Success: &yes, AST: ast}
}

// ---------------------------------------------------------------------------
// HTTPCaller against Server
// ---------------------------------------------------------------------------

func TestHTTPCaller_ThroughServer(t *testing.T) {
	stub := &stubCaller{fn: func(req Request) (*Response, error) { return ok(req), nil }}
	ts := httptest.NewServer(NewServer(stub, nil).Handler())
	defer ts.Close()

	c := NewHTTPCaller(HTTPConfig{URL: ts.URL})
	defer c.Close()

	resp, err := c.Call(context.Background(), Request{Command: CommandParseContent, FilePath: "a.py", Content: "pass"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "pass", echoed(t, resp))

	require.Len(t, stub.seen, 1)
	assert.Equal(t, CommandParseContent, stub.seen[0].Command)
	assert.Equal(t, "a.py", stub.seen[0].FilePath)
}

func TestHTTPCaller_HelperFailureIsResponse(t *testing.T) {
	stub := &stubCaller{fn: func(req Request) (*Response, error) {
		no := false
		return &Response{ID: req.ID, Success: &no, Error: "SyntaxError", Lineno: 3}, nil
	}}
	ts := httptest.NewServer(NewServer(stub, nil).Handler())
	defer ts.Close()

	resp, err := NewHTTPCaller(HTTPConfig{URL: ts.URL}).Call(context.Background(), Request{Command: CommandParseContent})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, "SyntaxError", resp.Error)
	assert.Equal(t, 3, resp.Lineno)
}

func TestHTTPCaller_ServerHelperUnavailable(t *testing.T) {
	stub := &stubCaller{fn: func(Request) (*Response, error) { return nil, errors.New("helper gone") }}
	ts := httptest.NewServer(NewServer(stub, nil).Handler())
	defer ts.Close()

	resp, err := NewHTTPCaller(HTTPConfig{URL: ts.URL}).Call(context.Background(), Request{Command: CommandParseContent})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, ErrorRPC, resp.Error)
	assert.Contains(t, resp.Message, "helper gone")
}

func TestHTTPCaller_SendsBearerToken(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeRPCResult(w, req.ID, map[string]any{"success": true, "resolved_path": "/usr/lib/os.py"})
	}))
	defer ts.Close()

	resp, err := NewHTTPCaller(HTTPConfig{URL: ts.URL, Token: "s3cret"}).
		Call(context.Background(), Request{Command: CommandResolveModule, ModuleName: "os"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "/usr/lib/os.py", resp.ResolvedPath)
	assert.Equal(t, "Bearer s3cret", auth)
}

func TestHTTPCaller_TransportErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer ts.Close()
		_, err := NewHTTPCaller(HTTPConfig{URL: ts.URL}).Call(context.Background(), Request{Command: CommandParseContent})
		require.Error(t, err)
		assert.True(t, perrors.IsType(err, perrors.BackendCommunicationFailure))
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("timeout", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}))
		defer ts.Close()
		_, err := NewHTTPCaller(HTTPConfig{URL: ts.URL, Timeout: 100 * time.Millisecond}).
			Call(context.Background(), Request{Command: CommandParseContent})
		require.Error(t, err)
		assert.True(t, perrors.IsType(err, perrors.BackendCommunicationFailure))
	})

	t.Run("not json", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer ts.Close()
		_, err := NewHTTPCaller(HTTPConfig{URL: ts.URL}).Call(context.Background(), Request{Command: CommandParseContent})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedResponse))
	})
}

// ---------------------------------------------------------------------------
// Server dispatch
// ---------------------------------------------------------------------------

func TestServer_RejectsUnknownMethodAndShutdown(t *testing.T) {
	stub := &stubCaller{fn: func(req Request) (*Response, error) { return ok(req), nil }}
	ts := httptest.NewServer(NewServer(stub, nil).Handler())
	defer ts.Close()
	c := NewHTTPCaller(HTTPConfig{URL: ts.URL})

	for _, cmd := range []string{"format_disk", CommandShutdown} {
		resp, err := c.Call(context.Background(), Request{Command: cmd})
		require.NoError(t, err, cmd)
		assert.False(t, resp.OK(), cmd)
		assert.Equal(t, ErrorRPC, resp.Error, cmd)
	}
	assert.Empty(t, stub.seen, "rejected methods never reach the helper")
}

func TestServer_Healthz(t *testing.T) {
	ts := httptest.NewServer(NewServer(&stubCaller{}, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
