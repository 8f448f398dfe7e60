// Package recon cross-checks the mirrored reward claims against the chain and
// materialises nightly report files for operator review.
package recon

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"girochain/services/achievements-gateway/mirror"
	"girochain/services/achievements-gateway/models"
)

const (
	// ReportRetentionDays specifies how long generated report files remain on disk.
	ReportRetentionDays = 90
	// StalePendingAfter marks PENDING claims older than this as anomalies.
	StalePendingAfter = time.Hour

	// Anomaly types emitted by the reconciler.
	AnomalyMissingOnChain = "missing_onchain"
	AnomalyMissingMirror  = "missing_mirror"
	AnomalyAmountMismatch = "amount_mismatch"
	AnomalyStalePending   = "stale_pending"
)

// Expected payout per reward kind, in wei. A mirrored claim recording any
// other amount is flagged.
var expectedAmounts = map[string]string{
	"onboarding":      "50000000000000000000",
	"first_listing":   "10000000000000000000",
	"second_sale":     "20000000000000000000",
	"second_purchase": "20000000000000000000",
}

// ChainChecker exposes the claim lookup RPC the reconciler depends on.
type ChainChecker interface {
	HasClaimedReward(ctx context.Context, wallet, kind string) (bool, error)
}

// AlertFunc is invoked for every anomaly detected during reconciliation.
type AlertFunc func(ctx context.Context, anomaly Anomaly) error

// Config captures the dependencies required to construct a Reconciler.
type Config struct {
	Store     *mirror.Store
	Chain     ChainChecker
	OutputDir string
	DryRun    bool
	Now       func() time.Time
	Alert     AlertFunc
	Logger    *slog.Logger
}

// Reconciler joins mirrored claims with on-chain claim state.
type Reconciler struct {
	store     *mirror.Store
	chain     ChainChecker
	outputDir string
	dryRun    bool
	now       func() time.Time
	alert     AlertFunc
	logger    *slog.Logger
}

// Anomaly captures a reconciliation failure requiring operator review.
type Anomaly struct {
	Type    string
	Wallet  string
	Kind    string
	Details string
}

// ReportRow summarises reconciliation status for a single wallet/kind claim.
type ReportRow struct {
	Wallet         string
	Kind           string
	MirrorStatus   string
	MirrorAmount   string
	ExpectedAmount string
	OnChain        bool
	MissingOnChain bool
	MissingMirror  bool
	AmountMismatch bool
	StalePending   bool
	RecordedAt     time.Time
}

// Result summarises a reconciliation run.
type Result struct {
	RanAt       time.Time
	Rows        []*ReportRow
	Anomalies   []Anomaly
	CSVPath     string
	ParquetPath string
}

// NewReconciler builds a configured reconciler.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errors.New("recon: store is required")
	}
	if cfg.Chain == nil {
		return nil, errors.New("recon: chain checker is required")
	}
	outputDir := cfg.OutputDir
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Join("giro-data", "recon")
	}
	alert := cfg.Alert
	if alert == nil {
		alert = func(ctx context.Context, anomaly Anomaly) error { return nil }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Reconciler{
		store:     cfg.Store,
		chain:     cfg.Chain,
		outputDir: outputDir,
		dryRun:    cfg.DryRun,
		now:       nowFn,
		alert:     alert,
		logger:    logger,
	}, nil
}

// Run walks every mirrored claim, confirms it against the chain, and writes
// the report files unless the run is a dry run.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	claims, err := r.store.AllClaims()
	if err != nil {
		return nil, fmt.Errorf("recon: load claims: %w", err)
	}
	now := r.now().UTC()
	rows := make([]*ReportRow, 0, len(claims))
	anomalies := make([]Anomaly, 0)

	for _, claim := range claims {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		onChain, err := r.chain.HasClaimedReward(ctx, claim.Wallet, claim.Kind)
		if err != nil {
			return nil, fmt.Errorf("recon: chain lookup %s/%s: %w", claim.Wallet, claim.Kind, err)
		}
		row := &ReportRow{
			Wallet:         claim.Wallet,
			Kind:           claim.Kind,
			MirrorStatus:   string(claim.Status),
			MirrorAmount:   claim.AmountWei,
			ExpectedAmount: expectedAmounts[claim.Kind],
			OnChain:        onChain,
			RecordedAt:     claim.UpdatedAt.UTC(),
		}
		switch claim.Status {
		case models.ClaimConfirmed:
			if !onChain {
				row.MissingOnChain = true
				anomalies = append(anomalies, r.raise(ctx, Anomaly{
					Type:    AnomalyMissingOnChain,
					Wallet:  claim.Wallet,
					Kind:    claim.Kind,
					Details: "mirror records a confirmed claim the chain does not know about",
				}))
			}
			if expected, ok := expectedAmounts[claim.Kind]; ok && claim.AmountWei != "" && claim.AmountWei != expected {
				row.AmountMismatch = true
				anomalies = append(anomalies, r.raise(ctx, Anomaly{
					Type:    AnomalyAmountMismatch,
					Wallet:  claim.Wallet,
					Kind:    claim.Kind,
					Details: fmt.Sprintf("mirror amount %s vs expected %s wei", claim.AmountWei, expected),
				}))
			}
		case models.ClaimPending:
			if onChain {
				row.MissingMirror = true
				anomalies = append(anomalies, r.raise(ctx, Anomaly{
					Type:    AnomalyMissingMirror,
					Wallet:  claim.Wallet,
					Kind:    claim.Kind,
					Details: "chain shows the reward claimed but the mirror never confirmed it",
				}))
			} else if now.Sub(claim.UpdatedAt.UTC()) > StalePendingAfter {
				row.StalePending = true
				anomalies = append(anomalies, r.raise(ctx, Anomaly{
					Type:    AnomalyStalePending,
					Wallet:  claim.Wallet,
					Kind:    claim.Kind,
					Details: fmt.Sprintf("claim pending since %s", claim.UpdatedAt.UTC().Format(time.RFC3339)),
				}))
			}
		case models.ClaimFailed:
			if onChain {
				row.MissingMirror = true
				anomalies = append(anomalies, r.raise(ctx, Anomaly{
					Type:    AnomalyMissingMirror,
					Wallet:  claim.Wallet,
					Kind:    claim.Kind,
					Details: "chain shows the reward claimed but the mirror marked it failed",
				}))
			}
		}
		rows = append(rows, row)
	}

	result := &Result{RanAt: now, Rows: rows, Anomalies: anomalies}
	if r.dryRun || len(rows) == 0 {
		return result, nil
	}

	runDir := filepath.Join(r.outputDir, now.Format("20060102"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("recon: ensure output dir: %w", err)
	}
	filename := fmt.Sprintf("claims_%s", now.Format("150405"))
	csvPath := filepath.Join(runDir, filename+".csv")
	if err := writeCSV(csvPath, rows); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(runDir, filename+".parquet")
	if err := writeParquet(parquetPath, rows); err != nil {
		return nil, err
	}
	r.logger.Info("recon report written",
		slog.String("csv", csvPath),
		slog.String("parquet", parquetPath),
		slog.Int("rows", len(rows)),
		slog.Int("anomalies", len(anomalies)))
	result.CSVPath = csvPath
	result.ParquetPath = parquetPath
	return result, nil
}

func (r *Reconciler) raise(ctx context.Context, anomaly Anomaly) Anomaly {
	if r.alert != nil {
		if err := r.alert(ctx, anomaly); err != nil {
			r.logger.Warn("recon alert delivery failed", slog.Any("error", err))
		}
	}
	return anomaly
}

func writeCSV(path string, rows []*ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{
		"wallet", "kind", "mirror_status", "mirror_amount_wei", "expected_amount_wei", "on_chain",
		"missing_onchain", "missing_mirror", "amount_mismatch", "stale_pending", "recorded_at",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("recon: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Wallet,
			row.Kind,
			row.MirrorStatus,
			row.MirrorAmount,
			row.ExpectedAmount,
			boolString(row.OnChain),
			boolString(row.MissingOnChain),
			boolString(row.MissingMirror),
			boolString(row.AmountMismatch),
			boolString(row.StalePending),
			row.RecordedAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("recon: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("recon: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	Wallet         string `parquet:"name=wallet, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind           string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	MirrorStatus   string `parquet:"name=mirror_status, type=BYTE_ARRAY, convertedtype=UTF8"`
	MirrorAmount   string `parquet:"name=mirror_amount_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExpectedAmount string `parquet:"name=expected_amount_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	OnChain        bool   `parquet:"name=on_chain, type=BOOLEAN"`
	MissingOnChain bool   `parquet:"name=missing_onchain, type=BOOLEAN"`
	MissingMirror  bool   `parquet:"name=missing_mirror, type=BOOLEAN"`
	AmountMismatch bool   `parquet:"name=amount_mismatch, type=BOOLEAN"`
	StalePending   bool   `parquet:"name=stale_pending, type=BOOLEAN"`
	RecordedAt     string `parquet:"name=recorded_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeParquet(path string, rows []*ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			Wallet:         row.Wallet,
			Kind:           row.Kind,
			MirrorStatus:   row.MirrorStatus,
			MirrorAmount:   row.MirrorAmount,
			ExpectedAmount: row.ExpectedAmount,
			OnChain:        row.OnChain,
			MissingOnChain: row.MissingOnChain,
			MissingMirror:  row.MissingMirror,
			AmountMismatch: row.AmountMismatch,
			StalePending:   row.StalePending,
			RecordedAt:     row.RecordedAt.Format(time.RFC3339),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("recon: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("recon: close parquet file: %w", err)
	}
	return nil
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
