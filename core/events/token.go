package events

import (
	"math/big"

	"girochain/core/types"
	"girochain/crypto"
)

const (
	TypeTokenTransferred   = "token.transferred"
	TypeTokenApproved      = "token.approved"
	TypeTokenRewardClaimed = "token.reward.claimed"
	TypeTokenPoolMinted    = "token.pool.minted"
	TypeTokenPaused        = "token.paused"
	TypeTokenUnpaused      = "token.unpaused"
)

// TokenTransferred is emitted for every balance movement, including the
// settlement leg of a marketplace purchase.
type TokenTransferred struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (TokenTransferred) EventType() string { return TypeTokenTransferred }

func (e TokenTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransferred,
		Attributes: map[string]string{
			"from":   crypto.NewAddress(crypto.GiroPrefix, e.From[:]).String(),
			"to":     crypto.NewAddress(crypto.GiroPrefix, e.To[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// TokenApproved is emitted when an owner grants a spender allowance.
type TokenApproved struct {
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (TokenApproved) EventType() string { return TypeTokenApproved }

func (e TokenApproved) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenApproved,
		Attributes: map[string]string{
			"owner":   crypto.NewAddress(crypto.GiroPrefix, e.Owner[:]).String(),
			"spender": crypto.NewAddress(crypto.GiroPrefix, e.Spender[:]).String(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// TokenRewardClaimed carries the wallet and fixed amount credited for a reward
// kind. The onboarding claim of the original contract maps onto kind
// "onboarding".
type TokenRewardClaimed struct {
	Wallet [20]byte
	Kind   string
	Amount *big.Int
}

func (TokenRewardClaimed) EventType() string { return TypeTokenRewardClaimed }

func (e TokenRewardClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenRewardClaimed,
		Attributes: map[string]string{
			"wallet": crypto.NewAddress(crypto.GiroPrefix, e.Wallet[:]).String(),
			"kind":   e.Kind,
			"amount": formatAmount(e.Amount),
		},
	}
}

// TokenPoolMinted records an owner-initiated expansion of the reward pool.
type TokenPoolMinted struct {
	Owner       [20]byte
	Amount      *big.Int
	TotalSupply *big.Int
}

func (TokenPoolMinted) EventType() string { return TypeTokenPoolMinted }

func (e TokenPoolMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenPoolMinted,
		Attributes: map[string]string{
			"owner":       crypto.NewAddress(crypto.GiroPrefix, e.Owner[:]).String(),
			"amount":      formatAmount(e.Amount),
			"totalSupply": formatAmount(e.TotalSupply),
		},
	}
}

// TokenPaused marks the moment all token movement was frozen.
type TokenPaused struct {
	Caller [20]byte
}

func (TokenPaused) EventType() string { return TypeTokenPaused }

func (e TokenPaused) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenPaused,
		Attributes: map[string]string{
			"caller": crypto.NewAddress(crypto.GiroPrefix, e.Caller[:]).String(),
		},
	}
}

// TokenUnpaused marks the moment normal operation resumed.
type TokenUnpaused struct {
	Caller [20]byte
}

func (TokenUnpaused) EventType() string { return TypeTokenUnpaused }

func (e TokenUnpaused) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenUnpaused,
		Attributes: map[string]string{
			"caller": crypto.NewAddress(crypto.GiroPrefix, e.Caller[:]).String(),
		},
	}
}
