package events

import (
	"math/big"

	"girochain/core/types"
	"girochain/crypto"
)

const (
	TypeProductCreated   = "marketplace.product.created"
	TypeProductSold      = "marketplace.product.sold"
	TypeProductCancelled = "marketplace.product.cancelled"
)

// ProductCreated is emitted when a seller lists a new product.
type ProductCreated struct {
	ProductID uint64
	Seller    [20]byte
	Title     string
	Price     *big.Int
	CreatedAt int64
}

func (ProductCreated) EventType() string { return TypeProductCreated }

func (e ProductCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeProductCreated,
		Attributes: map[string]string{
			"productId": uintToString(e.ProductID),
			"seller":    crypto.NewAddress(crypto.GiroPrefix, e.Seller[:]).String(),
			"title":     e.Title,
			"price":     formatAmount(e.Price),
			"createdAt": intToString(e.CreatedAt),
		},
	}
}

// ProductSold is emitted once settlement succeeded and the product reached its
// terminal Sold state.
type ProductSold struct {
	ProductID uint64
	Seller    [20]byte
	Buyer     [20]byte
	Price     *big.Int
	SoldAt    int64
}

func (ProductSold) EventType() string { return TypeProductSold }

func (e ProductSold) Event() *types.Event {
	return &types.Event{
		Type: TypeProductSold,
		Attributes: map[string]string{
			"productId": uintToString(e.ProductID),
			"seller":    crypto.NewAddress(crypto.GiroPrefix, e.Seller[:]).String(),
			"buyer":     crypto.NewAddress(crypto.GiroPrefix, e.Buyer[:]).String(),
			"price":     formatAmount(e.Price),
			"soldAt":    intToString(e.SoldAt),
		},
	}
}

// ProductCancelled is emitted when the seller withdraws an active listing.
type ProductCancelled struct {
	ProductID uint64
	Seller    [20]byte
}

func (ProductCancelled) EventType() string { return TypeProductCancelled }

func (e ProductCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeProductCancelled,
		Attributes: map[string]string{
			"productId": uintToString(e.ProductID),
			"seller":    crypto.NewAddress(crypto.GiroPrefix, e.Seller[:]).String(),
		},
	}
}
