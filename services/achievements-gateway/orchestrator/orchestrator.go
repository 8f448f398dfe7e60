// Package orchestrator drives the reward claim flow: it checks mirror
// eligibility, pushes the claim to the node and records the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"girochain/services/achievements-gateway/mirror"
	"girochain/services/achievements-gateway/models"
	"girochain/services/achievements-gateway/nodeclient"
)

var (
	// ErrNotUnlocked is returned when the wallet has not met the
	// achievement threshold for the requested reward.
	ErrNotUnlocked = errors.New("orchestrator: achievement not unlocked")
	// ErrAlreadyClaimed is returned when the mirror already holds a
	// confirmed claim for the wallet and kind.
	ErrAlreadyClaimed = errors.New("orchestrator: reward already claimed")
	// ErrPoolExhausted is returned when the node reports an empty pool.
	ErrPoolExhausted = errors.New("orchestrator: reward pool exhausted")
)

type Orchestrator struct {
	store  *mirror.Store
	node   nodeclient.Client
	logger *slog.Logger
}

func New(store *mirror.Store, node nodeclient.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, node: node, logger: logger}
}

// Result reports a processed claim.
type Result struct {
	Wallet    string `json:"wallet"`
	Kind      string `json:"kind"`
	AmountWei string `json:"amountWei"`
	// Repaired is set when the chain already held the claim and only the
	// mirror needed updating.
	Repaired bool `json:"repaired,omitempty"`
}

// Claim pushes a reward claim for the wallet through the node. A node-side
// "already claimed" answer is not an error: the chain is authoritative, so the
// mirror row is repaired and the claim reported as settled.
func (o *Orchestrator) Claim(ctx context.Context, wallet, kind string) (*Result, error) {
	achievements, err := o.store.Achievements(wallet)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load achievements: %w", err)
	}
	var unlocked, claimed bool
	for _, a := range achievements {
		if a.Kind == kind {
			unlocked = a.Unlocked
			claimed = a.Claimed
			break
		}
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}
	if !unlocked {
		return nil, ErrNotUnlocked
	}

	if err := o.store.RecordClaim(wallet, kind, "", models.ClaimPending); err != nil {
		return nil, fmt.Errorf("orchestrator: record pending claim: %w", err)
	}

	result, err := o.node.ClaimReward(ctx, wallet, kind)
	if err != nil {
		switch {
		case errors.Is(err, nodeclient.ErrAlreadyClaimed):
			// The chain has the claim but the mirror missed it.
			// Repair the row silently.
			o.logger.Info("repairing mirror claim flag",
				slog.String("wallet", wallet),
				slog.String("kind", kind),
			)
			if repairErr := o.store.RecordClaim(wallet, kind, "", models.ClaimConfirmed); repairErr != nil {
				return nil, fmt.Errorf("orchestrator: repair claim: %w", repairErr)
			}
			return &Result{Wallet: wallet, Kind: kind, Repaired: true}, nil
		case errors.Is(err, nodeclient.ErrInsufficientPool):
			_ = o.store.RecordClaim(wallet, kind, "", models.ClaimFailed)
			return nil, ErrPoolExhausted
		default:
			_ = o.store.RecordClaim(wallet, kind, "", models.ClaimFailed)
			return nil, fmt.Errorf("orchestrator: node claim: %w", err)
		}
	}

	if err := o.store.RecordClaim(wallet, kind, result.Amount, models.ClaimConfirmed); err != nil {
		return nil, fmt.Errorf("orchestrator: confirm claim: %w", err)
	}
	o.logger.Info("reward claimed",
		slog.String("wallet", wallet),
		slog.String("kind", kind),
		slog.String("amountWei", result.Amount),
	)
	return &Result{Wallet: wallet, Kind: kind, AmountWei: result.Amount}, nil
}
