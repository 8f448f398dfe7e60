package marketplace

import (
	"fmt"
	"math/big"
	"strings"
)

// ProductStatus represents the lifecycle phases of a listing. Sold and
// Cancelled are terminal.
type ProductStatus uint8

const (
	ProductActive ProductStatus = iota
	ProductSold
	ProductCancelled
)

// Valid reports whether the status value is supported.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductActive, ProductSold, ProductCancelled:
		return true
	default:
		return false
	}
}

func (s ProductStatus) String() string {
	switch s {
	case ProductActive:
		return "active"
	case ProductSold:
		return "sold"
	case ProductCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Product encapsulates one marketplace listing. IDs come from a monotonically
// incrementing counter and start at 1.
type Product struct {
	ID          uint64
	Seller      [20]byte
	Title       string
	Description string
	Price       *big.Int
	Status      ProductStatus
	CreatedAt   int64
	SoldAt      int64
	Buyer       [20]byte
}

// Clone returns a deep copy of the product allowing callers to mutate the
// result without affecting the stored instance.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeProduct validates and normalises the supplied listing, returning a
// cloned instance with trimmed strings and a non-nil price. The function does
// not mutate the original value.
func SanitizeProduct(p *Product) (*Product, error) {
	if p == nil {
		return nil, fmt.Errorf("marketplace: nil product")
	}
	clone := p.Clone()
	clone.Title = strings.TrimSpace(clone.Title)
	clone.Description = strings.TrimSpace(clone.Description)
	if clone.Title == "" {
		return nil, ErrEmptyTitle
	}
	if clone.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("marketplace: invalid status %d", clone.Status)
	}
	return clone, nil
}
