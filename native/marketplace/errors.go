package marketplace

import "errors"

var (
	ErrProductNotFound = errors.New("marketplace: product not found")
	ErrNotActive       = errors.New("marketplace: product not active")
	ErrSelfPurchase    = errors.New("marketplace: seller cannot buy own product")
	ErrNotSeller       = errors.New("marketplace: caller is not the seller")
	ErrEmptyTitle      = errors.New("marketplace: title required")
	ErrInvalidPrice    = errors.New("marketplace: price must be positive")
)
