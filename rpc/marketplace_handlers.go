package rpc

import (
	"net/http"

	"girochain/native/marketplace"
	"girochain/observability/metrics"
)

type listProductParams struct {
	Seller      string `json:"seller"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"priceInGiro"`
}

type buyProductParams struct {
	Buyer string `json:"buyer"`
	ID    uint64 `json:"id"`
}

type cancelProductParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type productQueryParams struct {
	ID uint64 `json:"id"`
}

type sellerQueryParams struct {
	Seller string `json:"seller"`
}

type productResult struct {
	ID          uint64 `json:"id"`
	Seller      string `json:"seller"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"priceInGiro"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	SoldAt      int64  `json:"soldAt,omitempty"`
	Buyer       string `json:"buyer,omitempty"`
}

func formatProduct(p *marketplace.Product) productResult {
	result := productResult{
		ID:          p.ID,
		Seller:      formatAddress(p.Seller),
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price.String(),
		Status:      p.Status.String(),
		CreatedAt:   p.CreatedAt,
	}
	if p.Status == marketplace.ProductSold {
		result.SoldAt = p.SoldAt
		result.Buyer = formatAddress(p.Buyer)
	}
	return result
}

func (s *Server) handleListProduct(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listProductParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	seller, err := decodeBech32(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid seller address", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", err.Error())
		return
	}
	id, err := s.node.ListProduct(seller, params.Title, params.Description, price)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.refreshProductGauges()
	writeResult(w, req.ID, id)
}

func (s *Server) handleBuyProduct(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params buyProductParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	buyer, err := decodeBech32(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	if err := s.node.BuyProduct(buyer, params.ID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.refreshProductGauges()
	writeResult(w, req.ID, true)
}

func (s *Server) handleCancelProduct(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params cancelProductParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.CancelProduct(caller, params.ID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.refreshProductGauges()
	writeResult(w, req.ID, true)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params productQueryParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	product, err := s.node.GetProduct(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatProduct(product))
}

func (s *Server) handleGetActiveProducts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	ids, err := s.node.ActiveProducts()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, s.collectProducts(ids))
}

func (s *Server) handleGetSellerProducts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sellerQueryParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	seller, err := decodeBech32(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid seller address", err.Error())
		return
	}
	ids, err := s.node.SellerProducts(seller)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, s.collectProducts(ids))
}

func (s *Server) handleProductCounter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	counter, err := s.node.ProductCounter()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, counter)
}

// refreshProductGauges republishes the per-status product counts after a
// mutating marketplace call.
func (s *Server) refreshProductGauges() {
	counter, err := s.node.ProductCounter()
	if err != nil {
		return
	}
	counts := map[marketplace.ProductStatus]float64{
		marketplace.ProductActive:    0,
		marketplace.ProductSold:      0,
		marketplace.ProductCancelled: 0,
	}
	for id := uint64(1); id <= counter; id++ {
		product, err := s.node.GetProduct(id)
		if err != nil {
			continue
		}
		counts[product.Status]++
	}
	for status, count := range counts {
		metrics.Ledger().SetProducts(status.String(), count)
	}
}

func (s *Server) collectProducts(ids []uint64) []productResult {
	results := make([]productResult, 0, len(ids))
	for _, id := range ids {
		product, err := s.node.GetProduct(id)
		if err != nil {
			// Ids from a view scan can only miss if the store is corrupted.
			continue
		}
		results = append(results, formatProduct(product))
	}
	return results
}
