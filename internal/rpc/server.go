// Package rpc implements the JSON-RPC 2.0 API served by launchpadd.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/relayer"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

const (
	maxBodySize  = 1 << 20
	maxBatchSize = 100
)

type handlerFunc func(*Server, *Request) (interface{}, *Error)

// methods maps JSON-RPC method names to handlers.
var methods = map[string]handlerFunc{
	"chain_getInfo":              (*Server).handleChainGetInfo,
	"call_submit":                (*Server).handleCallSubmit,
	"call_getReceipt":            (*Server).handleCallGetReceipt,
	"account_get":                (*Server).handleAccountGet,
	"factory_getInfo":            (*Server).handleFactoryGetInfo,
	"factory_listTokens":         (*Server).handleFactoryListTokens,
	"factory_getTokensByCreator": (*Server).handleFactoryGetTokensByCreator,
	"factory_getToken":           (*Server).handleFactoryGetToken,
	"factory_quote":              (*Server).handleFactoryQuote,
	"factory_remaining":          (*Server).handleFactoryRemaining,
	"token_getBalanceHandle":     (*Server).handleTokenGetBalanceHandle,
	"events_list":                (*Server).handleEventsList,
	"relayer_getPublicKey":       (*Server).handleRelayerGetPublicKey,
	"relayer_userDecrypt":        (*Server).handleRelayerUserDecrypt,
}

// Server serves the ledger, factory and relayer over HTTP.
type Server struct {
	addr    string
	ledger  *ledger.Ledger
	genesis *config.Genesis
	factory types.Address
	relayer *relayer.Relayer // nil disables relayer_* endpoints.
	filter  ipFilter
	cors    corsPolicy
	mux     *http.ServeMux
	srv     *http.Server
	ln      net.Listener
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a server. The optional rpcCfg supplies the IP allow-list and
// CORS origins; without it every caller is admitted and no CORS headers
// are sent.
func New(addr string, l *ledger.Ledger, genesis *config.Genesis, factory types.Address,
	rl *relayer.Relayer, rpcCfg ...config.RPCConfig) *Server {

	s := &Server{
		addr:    addr,
		ledger:  l,
		genesis: genesis,
		factory: factory,
		relayer: rl,
		mux:     http.NewServeMux(),
		logger:  klog.RPC,
		now:     time.Now,
	}
	if len(rpcCfg) > 0 {
		s.filter = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.cors = corsPolicy(rpcCfg[0].CORSOrigins)
	}

	s.mux.Handle("/", s.filter.wrap(s.cors.wrap(http.HandlerFunc(s.serveRPC))))
	s.srv = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// SetMetrics exposes g at path (default /metrics) behind the IP filter.
func (s *Server) SetMetrics(g prometheus.Gatherer, path string) {
	if path == "" {
		path = "/metrics"
	}
	s.mux.Handle(path, s.filter.wrap(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address, which differs from the configured one
// when listening on port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down, waiting up to five seconds for in-flight
// requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		s.serveBatch(w, body)
		return
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	writeJSON(w, s.call(&req))
}

// serveBatch answers a JSON-RPC batch with one response per element, in
// request order.
func (s *Server) serveBatch(w http.ResponseWriter, body []byte) {
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	switch {
	case len(batch) == 0:
		writeError(w, nil, CodeInvalidRequest, "empty batch")
		return
	case len(batch) > maxBatchSize:
		writeError(w, nil, CodeInvalidRequest, fmt.Sprintf("batch exceeds %d requests", maxBatchSize))
		return
	}

	out := make([]Response, len(batch))
	for i, raw := range batch {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			out[i] = errorResponse(nil, CodeInvalidRequest, "invalid request object")
			continue
		}
		out[i] = s.call(&req)
	}
	writeJSON(w, out)
}

// call validates and executes a single request.
func (s *Server) call(req *Request) Response {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`)
	}
	h, ok := methods[req.Method]
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
	result, rpcErr := h(s, req)
	if rpcErr != nil {
		s.logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).Msg(rpcErr.Message)
		return Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
	}
	return Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func errorResponse(id interface{}, code int, message string) Response {
	return Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, errorResponse(id, code, message))
}

// parseParams decodes req.Params into target by round-tripping through
// JSON, since Params arrives as a generic value.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// parseOptionalParams is parseParams for methods whose params may be
// omitted.
func parseOptionalParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return nil
	}
	return parseParams(req, target)
}
