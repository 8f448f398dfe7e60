package rpc

import (
	"net/http"

	"girochain/core"
)

const maxEventBatch = 500

type eventsParams struct {
	Cursor uint64 `json:"cursor"`
	Limit  int    `json:"limit"`
}

type eventsResult struct {
	Events     []core.SequencedEvent `json:"events"`
	NextCursor uint64                `json:"nextCursor"`
}

// handleEvents pages through the event log. Clients persist nextCursor and
// pass it back to resume where they left off.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := eventsParams{Limit: maxEventBatch}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at most one parameter object expected", nil)
		return
	}
	if len(req.Params) == 1 {
		if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
	}
	if params.Limit <= 0 || params.Limit > maxEventBatch {
		params.Limit = maxEventBatch
	}
	entries := s.node.Events(params.Cursor, params.Limit)
	next := params.Cursor
	if len(entries) > 0 {
		next = entries[len(entries)-1].Sequence
	}
	writeResult(w, req.ID, eventsResult{Events: entries, NextCursor: next})
}
