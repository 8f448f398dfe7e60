package recon

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"girochain/services/achievements-gateway/mirror"
	"girochain/services/achievements-gateway/models"
)

type stubChain struct {
	claimed map[string]bool
	err     error
}

func (s *stubChain) HasClaimedReward(ctx context.Context, wallet, kind string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.claimed[wallet+"/"+kind], nil
}

func newTestStore(t *testing.T) *mirror.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return mirror.NewStore(db)
}

func newReconciler(t *testing.T, store *mirror.Store, chain ChainChecker, dryRun bool) *Reconciler {
	t.Helper()
	r, err := NewReconciler(Config{
		Store:     store,
		Chain:     chain,
		OutputDir: t.TempDir(),
		DryRun:    dryRun,
	})
	require.NoError(t, err)
	return r
}

func TestRunCleanWhenMirrorMatchesChain(t *testing.T) {
	store := newTestStore(t)
	wallet := "giro1walletxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
	require.NoError(t, store.RecordClaim(wallet, "onboarding", "50000000000000000000", models.ClaimConfirmed))
	chain := &stubChain{claimed: map[string]bool{wallet + "/onboarding": true}}

	result, err := newReconciler(t, store, chain, true).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Empty(t, result.Anomalies)
	require.True(t, result.Rows[0].OnChain)
}

func TestRunFlagsConfirmedClaimMissingOnChain(t *testing.T) {
	store := newTestStore(t)
	wallet := "giro1walletxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
	require.NoError(t, store.RecordClaim(wallet, "first_listing", "10000000000000000000", models.ClaimConfirmed))
	chain := &stubChain{claimed: map[string]bool{}}

	var alerts []Anomaly
	r, err := NewReconciler(Config{
		Store:  store,
		Chain:  chain,
		DryRun: true,
		Alert: func(ctx context.Context, anomaly Anomaly) error {
			alerts = append(alerts, anomaly)
			return nil
		},
	})
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, AnomalyMissingOnChain, result.Anomalies[0].Type)
	require.Len(t, alerts, 1)
	require.True(t, result.Rows[0].MissingOnChain)
}

func TestRunFlagsPendingClaimTheChainConfirmed(t *testing.T) {
	store := newTestStore(t)
	wallet := "giro1walletxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
	require.NoError(t, store.RecordClaim(wallet, "second_sale", "", models.ClaimPending))
	chain := &stubChain{claimed: map[string]bool{wallet + "/second_sale": true}}

	result, err := newReconciler(t, store, chain, true).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, AnomalyMissingMirror, result.Anomalies[0].Type)
}

func TestRunFlagsStalePendingClaim(t *testing.T) {
	store := newTestStore(t)
	wallet := "giro1walletxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
	require.NoError(t, store.RecordClaim(wallet, "second_purchase", "", models.ClaimPending))
	chain := &stubChain{claimed: map[string]bool{}}

	r := newReconciler(t, store, chain, true)
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, AnomalyStalePending, result.Anomalies[0].Type)
}

func TestRunFlagsAmountMismatch(t *testing.T) {
	store := newTestStore(t)
	wallet := "giro1walletxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
	require.NoError(t, store.RecordClaim(wallet, "onboarding", "1", models.ClaimConfirmed))
	chain := &stubChain{claimed: map[string]bool{wallet + "/onboarding": true}}

	result, err := newReconciler(t, store, chain, true).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, AnomalyAmountMismatch, result.Anomalies[0].Type)
}

func TestRunWritesReportFiles(t *testing.T) {
	store := newTestStore(t)
	wallet := "giro1walletxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
	require.NoError(t, store.RecordClaim(wallet, "onboarding", "50000000000000000000", models.ClaimConfirmed))
	chain := &stubChain{claimed: map[string]bool{wallet + "/onboarding": true}}

	result, err := newReconciler(t, store, chain, false).Run(context.Background())
	require.NoError(t, err)
	require.FileExists(t, result.CSVPath)
	require.FileExists(t, result.ParquetPath)
}
