package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"girochain/native/token"
	"girochain/observability/metrics"
)

type claimRewardParams struct {
	Caller string `json:"caller"`
	Kind   string `json:"kind"`
}

type rewardQueryParams struct {
	Wallet string `json:"wallet"`
	Kind   string `json:"kind"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type transferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type approveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type allowanceParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

type mintPoolParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type pauseParams struct {
	Caller string `json:"caller"`
}

type claimRewardResult struct {
	Wallet string `json:"wallet"`
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func decodeSingleParam(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func (s *Server) handleClaimReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimRewardParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	kind, err := token.ParseRewardKind(params.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid reward kind", err.Error())
		return
	}
	amount, err := s.node.ClaimReward(caller, kind)
	if err != nil {
		metrics.Ledger().ClaimRejected(claimRejectReason(err))
		writeEngineError(w, req.ID, err)
		return
	}
	metrics.Ledger().RewardClaimed(kind.String())
	s.refreshPoolGauge()
	writeResult(w, req.ID, claimRewardResult{
		Wallet: params.Caller,
		Kind:   kind.String(),
		Amount: amount.String(),
	})
}

func claimRejectReason(err error) string {
	switch {
	case errors.Is(err, token.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, token.ErrInsufficientPool):
		return "insufficient_pool"
	case errors.Is(err, token.ErrPaused):
		return "paused"
	case errors.Is(err, token.ErrUnknownRewardKind):
		return "unknown_kind"
	default:
		return "other"
	}
}

func (s *Server) refreshPoolGauge() {
	pool, err := s.node.RewardPoolBalance()
	if err != nil {
		return
	}
	wei, _ := new(big.Float).SetInt(pool).Float64()
	metrics.Ledger().SetRewardPool(wei)
}

func (s *Server) handleCanClaimReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	wallet, kind, rpcErr := decodeRewardQuery(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	ok, err := s.node.CanClaimReward(wallet, kind)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ok)
}

func (s *Server) handleHasClaimedReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	wallet, kind, rpcErr := decodeRewardQuery(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	claimed, err := s.node.HasClaimedReward(wallet, kind)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimed)
}

func decodeRewardQuery(req *RPCRequest) ([20]byte, token.RewardKind, *RPCError) {
	var params rewardQueryParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		return [20]byte{}, "", rpcErr
	}
	wallet, err := decodeBech32(params.Wallet)
	if err != nil {
		return [20]byte{}, "", &RPCError{Code: codeInvalidParams, Message: "invalid wallet address", Data: err.Error()}
	}
	kind, err := token.ParseRewardKind(params.Kind)
	if err != nil {
		return [20]byte{}, "", &RPCError{Code: codeInvalidParams, Message: "invalid reward kind", Data: err.Error()}
	}
	return wallet, kind, nil
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	addr, err := decodeBech32(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.node.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: params.Address, Balance: balance.String()})
}

func (s *Server) handleTotalSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	supply, err := s.node.TotalSupply()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, supply.String())
}

func (s *Server) handleRewardPoolBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	pool, err := s.node.RewardPoolBalance()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, pool.String())
}

func (s *Server) handleTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params transferParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	from, err := decodeBech32(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from address", err.Error())
		return
	}
	to, err := decodeBech32(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Transfer(from, to, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params approveParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	owner, err := decodeBech32(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	spender, err := decodeBech32(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
		return
	}
	// Zero clears an existing approval, so the amount may be "0" here.
	amount := new(big.Int)
	if trimmed := params.Amount; trimmed != "" {
		parsed, ok := new(big.Int).SetString(trimmed, 10)
		if !ok || parsed.Sign() < 0 {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
			return
		}
		amount = parsed
	}
	if err := s.node.Approve(owner, spender, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleAllowance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params allowanceParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	owner, err := decodeBech32(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	spender, err := decodeBech32(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
		return
	}
	allowance, err := s.node.Allowance(owner, spender)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, allowance.String())
}

func (s *Server) handleMintRewardPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintPoolParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.MintRewardPool(caller, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.refreshPoolGauge()
	writeResult(w, req.ID, true)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pauseParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.Pause(caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleUnpause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pauseParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.Unpause(caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handlePausedQuery(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	paused, err := s.node.Paused()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, paused)
}
