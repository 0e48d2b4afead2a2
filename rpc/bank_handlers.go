package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"vaultbank/native/bank"
	"vaultbank/observability/logging"
)

// defaultSwapDeadline bounds venue calls when the caller omits a deadline.
const defaultSwapDeadline = 2 * time.Minute

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseOptionalAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	return bank.ParseAmount(raw)
}

func resolveDeadline(unix int64) time.Time {
	if unix <= 0 {
		return time.Now().Add(defaultSwapDeadline)
	}
	return time.Unix(unix, 0)
}

type depositNativeParams struct {
	Caller          string `json:"caller"`
	Amount          string `json:"amount"`
	MinCanonicalOut string `json:"minCanonicalOut,omitempty"`
	Deadline        int64  `json:"deadline,omitempty"`
}

func (s *Server) handleDepositNative(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params depositNativeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := bank.ParseOwner(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	amount, err := bank.ParseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	minOut, err := parseOptionalAmount(params.MinCanonicalOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minCanonicalOut", err.Error())
		return
	}
	received, err := s.engine.DepositNative(r.Context(), caller, amount, minOut, resolveDeadline(params.Deadline))
	if err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	s.metrics.ObserveDeposit("native")
	writeResult(w, req.ID, map[string]string{"received": received.String()})
}

type depositTokenParams struct {
	Caller          string `json:"caller"`
	Asset           string `json:"asset"`
	Amount          string `json:"amount"`
	MinCanonicalOut string `json:"minCanonicalOut,omitempty"`
	Deadline        int64  `json:"deadline,omitempty"`
}

func (s *Server) handleDepositToken(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params depositTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := bank.ParseOwner(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	asset, err := bank.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	amount, err := bank.ParseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	minOut, err := parseOptionalAmount(params.MinCanonicalOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minCanonicalOut", err.Error())
		return
	}
	if err := s.engine.DepositToken(r.Context(), caller, asset, amount, minOut, resolveDeadline(params.Deadline)); err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	s.metrics.ObserveDeposit("token")
	writeResult(w, req.ID, map[string]string{"status": "credited"})
}

type withdrawParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount"`
}

func (s *Server) handleWithdrawNative(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := bank.ParseOwner(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	amount, err := bank.ParseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.engine.WithdrawNative(r.Context(), caller, amount); err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	s.metrics.ObserveWithdrawal("native")
	writeResult(w, req.ID, map[string]string{"status": "released"})
}

func (s *Server) handleWithdrawToken(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := bank.ParseOwner(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	asset, err := bank.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	amount, err := bank.ParseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.engine.WithdrawToken(r.Context(), caller, asset, amount); err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	s.metrics.ObserveWithdrawal("token")
	writeResult(w, req.ID, map[string]string{"status": "released"})
}

type balanceParams struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	owner, err := bank.ParseOwner(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	asset, err := bank.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	balance, err := s.engine.GetBalance(owner, asset)
	if err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}

type assetParams struct {
	Asset string `json:"asset"`
}

func (s *Server) handleGetTokenPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	asset, err := bank.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	quote, err := s.engine.GetTokenPriceUSD(asset)
	if err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"price":     quote.Price.String(),
		"decimals":  quote.Decimals,
		"updatedAt": quote.UpdatedAt.UTC().Unix(),
	})
}

type valueParams struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (s *Server) handleGetValue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params valueParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	asset, err := bank.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	amount, err := bank.ParseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	valuation, err := s.engine.GetValueInUSD(asset, amount)
	if err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"value":  valuation.Value.String(),
		"priced": valuation.Priced,
	})
}

func (s *Server) handleGetTotalValue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	total, err := s.engine.GetTotalBankValueUSD()
	if err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	totalFloat, _ := new(big.Float).SetInt(total).Float64()
	s.metrics.SetTotalValue(totalFloat)
	writeResult(w, req.ID, map[string]string{"totalValue": total.String()})
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	state, err := s.engine.State()
	if err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"totalValue":      state.TotalValue.String(),
		"cap":             state.Cap.String(),
		"depositCount":    state.DepositCount,
		"withdrawalCount": state.WithdrawalCount,
	})
}

type listEventsParams struct {
	EventType string `json:"eventType,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type eventResult struct {
	ID         string            `json:"id"`
	EventType  string            `json:"eventType"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt int64             `json:"recordedAt"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.journal == nil {
		writeError(w, http.StatusOK, req.ID, codeServerError, "event journal not configured", nil)
		return
	}
	params := listEventsParams{}
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
			return
		}
	}
	entries, err := s.journal.List(r.Context(), params.EventType, params.Limit)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	results := make([]eventResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, eventResult{
			ID:         entry.ID,
			EventType:  entry.EventType,
			Attributes: entry.Attributes,
			RecordedAt: entry.RecordedAt.Unix(),
		})
	}
	writeResult(w, req.ID, results)
}

type setPriceFeedParams struct {
	Caller    string `json:"caller"`
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Decimals  uint8  `json:"decimals"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

func (s *Server) handleSetPriceFeed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setPriceFeedParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := bank.ParseOwner(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	asset, err := bank.ParseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset", err.Error())
		return
	}
	price, err := bank.ParseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", err.Error())
		return
	}
	updatedAt := time.Now().UTC()
	if params.UpdatedAt > 0 {
		updatedAt = time.Unix(params.UpdatedAt, 0).UTC()
	}
	feed := bank.NewManualFeed(price, params.Decimals, updatedAt)
	if err := s.engine.SetPriceFeed(caller, asset, feed); err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	s.logger.Info("price feed installed", logging.MaskField("asset", hex.EncodeToString(asset[:])))
	writeResult(w, req.ID, map[string]string{"status": "installed"})
}

type setCapParams struct {
	Caller string `json:"caller"`
	Cap    string `json:"cap"`
}

func (s *Server) handleSetBankCap(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setCapParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := bank.ParseOwner(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	capLimit, err := bank.ParseAmount(params.Cap)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid cap", err.Error())
		return
	}
	if err := s.engine.SetBankCap(caller, capLimit); err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	s.logger.Info("bank cap updated", logging.MaskField("cap", capLimit.String()))
	writeResult(w, req.ID, map[string]string{"status": "updated"})
}

type pauseParams struct {
	Caller string `json:"caller"`
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pauseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := bank.ParseOwner(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.engine.Pause(caller); err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	s.logger.Warn("bank paused", logging.MaskField("caller", hex.EncodeToString(caller[:])))
	writeResult(w, req.ID, map[string]string{"status": "paused"})
}

func (s *Server) handleUnpause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pauseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return
	}
	caller, err := bank.ParseOwner(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.engine.Unpause(caller); err != nil {
		s.writeBankError(w, req.ID, err)
		return
	}
	s.logger.Info("bank unpaused", logging.MaskField("caller", hex.EncodeToString(caller[:])))
	writeResult(w, req.ID, map[string]string{"status": "active"})
}
