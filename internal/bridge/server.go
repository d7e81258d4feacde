package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Server exposes a Caller over HTTP JSON-RPC, so a helper running on one
// host can serve backends elsewhere through HTTPCaller.
type Server struct {
	caller Caller
	log    *logrus.Entry
}

// NewServer returns a Server forwarding every request to caller.
func NewServer(caller Caller, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.StandardLogger().WithField("component", "bridge-server")
	}
	return &Server{caller: caller, log: log}
}

// Handler returns the HTTP handler. JSON-RPC requests are accepted on POST /.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleJSONRPC)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, ErrCodeParse, "Parse error: "+err.Error())
		return
	}

	switch req.Method {
	case CommandParseContent, CommandParseFile, CommandExtractImports, CommandResolveModule:
	case CommandShutdown:
		// The helper belongs to the server process; remote peers may not stop it.
		writeRPCError(w, req.ID, ErrCodeInvalidRequest, "shutdown is not accepted over HTTP")
		return
	default:
		writeRPCError(w, req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
		return
	}

	var params Request
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}
	params.Command = req.Method

	resp, err := s.caller.Call(r.Context(), params)
	if err != nil {
		s.log.WithError(err).WithField("method", req.Method).Warn("helper call failed")
		writeRPCError(w, req.ID, ErrCodeHelperUnavailable, err.Error())
		return
	}
	writeRPCResult(w, req.ID, resp)
}

func writeRPCResult(w http.ResponseWriter, id any, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		writeRPCError(w, id, ErrCodeInternal, "Internal error: "+err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonrpcVersion, ID: id, Result: data})
}

func writeRPCError(w http.ResponseWriter, id any, code int, msg string) {
	_ = json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: msg},
	})
}
