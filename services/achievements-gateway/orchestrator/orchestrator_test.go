package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"girochain/services/achievements-gateway/mirror"
	"girochain/services/achievements-gateway/models"
	"girochain/services/achievements-gateway/nodeclient"
)

type stubNode struct {
	nodeclient.Client

	claimErr    error
	claimAmount string
	claimCalls  int
}

func (s *stubNode) ClaimReward(ctx context.Context, wallet, kind string) (*nodeclient.ClaimResult, error) {
	s.claimCalls++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return &nodeclient.ClaimResult{Wallet: wallet, Kind: kind, Amount: s.claimAmount}, nil
}

func setup(t *testing.T) (*mirror.Store, *stubNode, *Orchestrator) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	store := mirror.NewStore(db)
	node := &stubNode{claimAmount: "50000000000000000000"}
	return store, node, New(store, node, nil)
}

func TestClaimHappyPath(t *testing.T) {
	store, node, orch := setup(t)
	_, err := store.EnsureUser("giro1wallet", "")
	require.NoError(t, err)
	require.NoError(t, store.CompleteProfile("giro1wallet"))

	result, err := orch.Claim(context.Background(), "giro1wallet", "onboarding")
	require.NoError(t, err)
	require.Equal(t, "50000000000000000000", result.AmountWei)
	require.False(t, result.Repaired)
	require.Equal(t, 1, node.claimCalls)

	claimed, err := store.HasConfirmedClaim("giro1wallet", "onboarding")
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestClaimLockedAchievement(t *testing.T) {
	store, node, orch := setup(t)
	_, err := store.EnsureUser("giro1wallet", "")
	require.NoError(t, err)

	_, err = orch.Claim(context.Background(), "giro1wallet", "first_listing")
	require.ErrorIs(t, err, ErrNotUnlocked)
	require.Zero(t, node.claimCalls)
}

func TestClaimAlreadyConfirmedInMirror(t *testing.T) {
	store, node, orch := setup(t)
	_, err := store.EnsureUser("giro1wallet", "")
	require.NoError(t, err)
	require.NoError(t, store.CompleteProfile("giro1wallet"))
	require.NoError(t, store.RecordClaim("giro1wallet", "onboarding", "50", models.ClaimConfirmed))

	_, err = orch.Claim(context.Background(), "giro1wallet", "onboarding")
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	require.Zero(t, node.claimCalls)
}

func TestClaimRepairsMirrorWhenChainAlreadyHasIt(t *testing.T) {
	store, node, orch := setup(t)
	_, err := store.EnsureUser("giro1wallet", "")
	require.NoError(t, err)
	require.NoError(t, store.CompleteProfile("giro1wallet"))
	node.claimErr = nodeclient.ErrAlreadyClaimed

	result, err := orch.Claim(context.Background(), "giro1wallet", "onboarding")
	require.NoError(t, err)
	require.True(t, result.Repaired)

	claimed, err := store.HasConfirmedClaim("giro1wallet", "onboarding")
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestClaimPoolExhaustedMarksFailure(t *testing.T) {
	store, node, orch := setup(t)
	_, err := store.EnsureUser("giro1wallet", "")
	require.NoError(t, err)
	require.NoError(t, store.CompleteProfile("giro1wallet"))
	node.claimErr = nodeclient.ErrInsufficientPool

	_, err = orch.Claim(context.Background(), "giro1wallet", "onboarding")
	require.ErrorIs(t, err, ErrPoolExhausted)

	claims, err := store.Claims("giro1wallet")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, models.ClaimFailed, claims[0].Status)

	// The wallet can retry once the pool is topped up.
	node.claimErr = nil
	result, err := orch.Claim(context.Background(), "giro1wallet", "onboarding")
	require.NoError(t, err)
	require.Equal(t, "50000000000000000000", result.AmountWei)
}
