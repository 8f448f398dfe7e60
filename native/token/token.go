package token

import (
	"math/big"
	"strings"
)

// Token metadata mirroring the deployed GIRO contract.
const (
	Name     = "Giro Token"
	Symbol   = "GIRO"
	Decimals = 18
)

// RewardKind identifies one of the fixed onboarding/achievement rewards.
type RewardKind string

const (
	RewardOnboarding     RewardKind = "onboarding"
	RewardFirstListing   RewardKind = "first_listing"
	RewardSecondSale     RewardKind = "second_sale"
	RewardSecondPurchase RewardKind = "second_purchase"
)

// Valid reports whether the reward kind is one of the supported values.
func (k RewardKind) Valid() bool {
	switch k {
	case RewardOnboarding, RewardFirstListing, RewardSecondSale, RewardSecondPurchase:
		return true
	default:
		return false
	}
}

func (k RewardKind) String() string { return string(k) }

// ParseRewardKind normalises and validates a reward kind supplied over RPC.
func ParseRewardKind(raw string) (RewardKind, error) {
	kind := RewardKind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", ErrUnknownRewardKind
	}
	return kind, nil
}

var weiPerGiro = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Units converts a whole-token amount into the wei-scaled representation used
// across the ledger.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), weiPerGiro)
}

// MaxSupply caps the total supply at 10M GIRO; mintRewardPool can never push
// the supply past it.
func MaxSupply() *big.Int {
	return Units(10_000_000)
}

// DefaultInitialSupply matches the deployment used by the original demo.
func DefaultInitialSupply() *big.Int {
	return Units(100_000)
}

var rewardAmounts = map[RewardKind]int64{
	RewardOnboarding:     50,
	RewardFirstListing:   10,
	RewardSecondSale:     20,
	RewardSecondPurchase: 20,
}

// RewardAmount returns the fixed wei-scaled amount credited for the kind.
func RewardAmount(kind RewardKind) *big.Int {
	n, ok := rewardAmounts[kind]
	if !ok {
		return big.NewInt(0)
	}
	return Units(n)
}

// RewardKinds lists the supported kinds in claim-order for UIs and reports.
func RewardKinds() []RewardKind {
	return []RewardKind{RewardOnboarding, RewardFirstListing, RewardSecondSale, RewardSecondPurchase}
}
