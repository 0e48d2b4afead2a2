package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultbank/journal"
	"vaultbank/native/bank"
	"vaultbank/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeCapExceeded    = -32030
	codeInsufficient   = -32031
	codePaused         = -32032
	codeReentrant      = -32033
	codeOracle         = -32034
	codeSwapFailed     = -32035
	codeOutOfBounds    = -32036
)

// Server exposes the bank over JSON-RPC 2.0 plus health and metrics routes.
type Server struct {
	engine    *bank.Engine
	journal   *journal.Journal
	authToken string
	logger    *slog.Logger
	metrics   *metrics.BankMetrics
	router    http.Handler
}

// NewServer wires the RPC surface. The journal may be nil, in which case the
// event listing method reports an unavailable error.
func NewServer(engine *bank.Engine, j *journal.Journal, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		journal:   j,
		authToken: strings.TrimSpace(authToken),
		logger:    logger,
		metrics:   metrics.Bank(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "bank_depositNative":
		s.handleDepositNative(w, r, req)
	case "bank_depositToken":
		s.handleDepositToken(w, r, req)
	case "bank_withdrawNative":
		s.handleWithdrawNative(w, r, req)
	case "bank_withdrawToken":
		s.handleWithdrawToken(w, r, req)
	case "bank_getBalance":
		s.handleGetBalance(w, r, req)
	case "bank_getTokenPrice":
		s.handleGetTokenPrice(w, r, req)
	case "bank_getValue":
		s.handleGetValue(w, r, req)
	case "bank_getTotalValue":
		s.handleGetTotalValue(w, r, req)
	case "bank_getState":
		s.handleGetState(w, r, req)
	case "bank_listEvents":
		s.handleListEvents(w, r, req)
	case "bank_setPriceFeed":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSetPriceFeed(w, r, req)
	case "bank_setBankCap":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSetBankCap(w, r, req)
	case "bank_pause":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handlePause(w, r, req)
	case "bank_unpause":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUnpause(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// writeBankError maps domain failures onto stable RPC codes so clients can
// branch without parsing messages.
func (s *Server) writeBankError(w http.ResponseWriter, id interface{}, err error) {
	code := codeServerError
	status := http.StatusOK
	var (
		limit        *bank.DepositLimitError
		insufficient *bank.InsufficientBalanceError
		bounds       *bank.WithdrawBoundsError
	)
	switch {
	case errors.As(err, &limit):
		code = codeCapExceeded
		s.metrics.ObserveRejection("cap_exceeded")
	case errors.As(err, &insufficient):
		code = codeInsufficient
		s.metrics.ObserveRejection("insufficient_balance")
	case errors.As(err, &bounds):
		code = codeOutOfBounds
		s.metrics.ObserveRejection("out_of_bounds")
	case errors.Is(err, bank.ErrPaused):
		code = codePaused
		s.metrics.ObserveRejection("paused")
	case errors.Is(err, bank.ErrReentrantCall):
		code = codeReentrant
		s.metrics.ObserveRejection("reentrant")
	case errors.Is(err, bank.ErrSwapFailed):
		code = codeSwapFailed
		s.metrics.ObserveRejection("swap_failed")
	case errors.Is(err, bank.ErrNoPriceFeed), errors.Is(err, bank.ErrStalePrice), errors.Is(err, bank.ErrOracleCompromised):
		code = codeOracle
		s.metrics.ObserveRejection("oracle")
	case errors.Is(err, bank.ErrUnauthorized):
		code = codeUnauthorized
		status = http.StatusForbidden
		s.metrics.ObserveRejection("unauthorized")
	case errors.Is(err, bank.ErrZeroAmount):
		code = codeInvalidParams
		s.metrics.ObserveRejection("zero_amount")
	default:
		s.metrics.ObserveRejection("internal")
	}
	writeError(w, status, id, code, err.Error(), nil)
}
