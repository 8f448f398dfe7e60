// Package mirror maintains the off-chain projection of wallets, products and
// reward claims that the marketplace frontend reads. The chain stays the
// source of truth; this store only caches what events and API calls report.
package mirror

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"girochain/services/achievements-gateway/models"
)

// Achievement thresholds measured against the activity counters.
const (
	FirstListingThreshold   = 1
	SecondSaleThreshold     = 2
	SecondPurchaseThreshold = 2
)

var ErrUserNotFound = errors.New("mirror: user not found")

// Store wraps the gorm handle with achievement domain operations.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetNowFunc overrides the clock in tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Achievement reports one reward kind with its unlock and claim state.
type Achievement struct {
	Kind     string `json:"kind"`
	Unlocked bool   `json:"unlocked"`
	Claimed  bool   `json:"claimed"`
	Progress int    `json:"progress"`
	Target   int    `json:"target"`
}

func normalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// EnsureUser registers a wallet, creating the onboarding and progress rows on
// first sight. Repeat calls update the username only.
func (s *Store) EnsureUser(wallet, username string) (*models.User, error) {
	wallet = normalizeWallet(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("mirror: wallet is required")
	}
	var user models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("wallet = ?", wallet).First(&user)
		if res.Error == nil {
			if username != "" && username != user.Username {
				user.Username = username
				user.UpdatedAt = s.now()
				return tx.Save(&user).Error
			}
			return nil
		}
		if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return res.Error
		}
		now := s.now()
		user = models.User{ID: uuid.New(), Wallet: wallet, Username: username, CreatedAt: now, UpdatedAt: now}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		onboarding := models.OnboardingStatus{ID: uuid.New(), Wallet: wallet, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&onboarding).Error; err != nil {
			return err
		}
		progress := models.AchievementProgress{ID: uuid.New(), Wallet: wallet, CreatedAt: now, UpdatedAt: now}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&progress).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CompleteProfile marks the onboarding profile step done, unlocking the
// onboarding reward.
func (s *Store) CompleteProfile(wallet string) error {
	wallet = normalizeWallet(wallet)
	res := s.db.Model(&models.OnboardingStatus{}).
		Where("wallet = ?", wallet).
		Updates(map[string]interface{}{"profile_completed": true, "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Onboarding returns the onboarding row for a wallet.
func (s *Store) Onboarding(wallet string) (*models.OnboardingStatus, error) {
	wallet = normalizeWallet(wallet)
	var status models.OnboardingStatus
	if err := s.db.Where("wallet = ?", wallet).First(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &status, nil
}

// Progress returns the activity counters for a wallet, zero-valued when the
// wallet is unknown.
func (s *Store) Progress(wallet string) (*models.AchievementProgress, error) {
	wallet = normalizeWallet(wallet)
	var progress models.AchievementProgress
	if err := s.db.Where("wallet = ?", wallet).First(&progress).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.AchievementProgress{Wallet: wallet}, nil
		}
		return nil, err
	}
	return &progress, nil
}

// IncrementListings bumps the listing counter, creating the row when needed.
// The sequence identifies the node event driving the bump.
func (s *Store) IncrementListings(wallet string, sequence uint64) error {
	return s.incrementCounter(wallet, "listings_count", sequence)
}

// IncrementSales bumps the seller side of a completed sale.
func (s *Store) IncrementSales(wallet string, sequence uint64) error {
	return s.incrementCounter(wallet, "sales_count", sequence)
}

// IncrementPurchases bumps the buyer side of a completed sale.
func (s *Store) IncrementPurchases(wallet string, sequence uint64) error {
	return s.incrementCounter(wallet, "purchases_count", sequence)
}

// incrementCounter records the (sequence, counter) pair before moving the
// counter. A replayed event hits the unique index and leaves the counter
// alone, so batch replays after a crash or cursor rollback cannot
// double-count.
func (s *Store) incrementCounter(wallet, column string, sequence uint64) error {
	wallet = normalizeWallet(wallet)
	if wallet == "" {
		return fmt.Errorf("mirror: wallet is required")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := s.now()
		marker := models.ProgressEvent{
			ID:        uuid.New(),
			Sequence:  sequence,
			Counter:   column,
			Wallet:    wallet,
			CreatedAt: now,
		}
		applied := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
		if applied.Error != nil {
			return applied.Error
		}
		if applied.RowsAffected == 0 {
			return nil
		}
		progress := models.AchievementProgress{ID: uuid.New(), Wallet: wallet, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&progress).Error; err != nil {
			return err
		}
		return tx.Model(&models.AchievementProgress{}).
			Where("wallet = ?", wallet).
			Updates(map[string]interface{}{
				column:       gorm.Expr(column+" + ?", 1),
				"updated_at": now,
			}).Error
	})
}

// Achievements assembles the reward checklist for a wallet from the
// onboarding flag, activity counters and recorded claims.
func (s *Store) Achievements(wallet string) ([]Achievement, error) {
	wallet = normalizeWallet(wallet)
	progress, err := s.Progress(wallet)
	if err != nil {
		return nil, err
	}
	profileDone := false
	if onboarding, err := s.Onboarding(wallet); err == nil {
		profileDone = onboarding.ProfileCompleted
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	claimed, err := s.claimedKinds(wallet)
	if err != nil {
		return nil, err
	}

	boolToInt := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}

	return []Achievement{
		{
			Kind:     "onboarding",
			Unlocked: profileDone,
			Claimed:  claimed["onboarding"],
			Progress: boolToInt(profileDone),
			Target:   1,
		},
		{
			Kind:     "first_listing",
			Unlocked: progress.ListingsCount >= FirstListingThreshold,
			Claimed:  claimed["first_listing"],
			Progress: progress.ListingsCount,
			Target:   FirstListingThreshold,
		},
		{
			Kind:     "second_sale",
			Unlocked: progress.SalesCount >= SecondSaleThreshold,
			Claimed:  claimed["second_sale"],
			Progress: progress.SalesCount,
			Target:   SecondSaleThreshold,
		},
		{
			Kind:     "second_purchase",
			Unlocked: progress.PurchasesCount >= SecondPurchaseThreshold,
			Claimed:  claimed["second_purchase"],
			Progress: progress.PurchasesCount,
			Target:   SecondPurchaseThreshold,
		},
	}, nil
}

func (s *Store) claimedKinds(wallet string) (map[string]bool, error) {
	var claims []models.RewardClaim
	if err := s.db.Where("wallet = ? AND status = ?", wallet, models.ClaimConfirmed).Find(&claims).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(claims))
	for _, claim := range claims {
		out[claim.Kind] = true
	}
	return out, nil
}

// RecordClaim upserts a claim row in the given status. Confirming a claim for
// the onboarding kind also flips the onboarding reward flag.
func (s *Store) RecordClaim(wallet, kind, amountWei string, status models.ClaimStatus) error {
	wallet = normalizeWallet(wallet)
	if wallet == "" || kind == "" {
		return fmt.Errorf("mirror: wallet and kind are required")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := s.now()
		claim := models.RewardClaim{
			ID:        uuid.New(),
			Wallet:    wallet,
			Kind:      kind,
			AmountWei: amountWei,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "wallet"}, {Name: "kind"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":     status,
				"amount_wei": amountWei,
				"updated_at": now,
			}),
		}).Create(&claim).Error
		if err != nil {
			return err
		}
		if kind == "onboarding" && status == models.ClaimConfirmed {
			return tx.Model(&models.OnboardingStatus{}).
				Where("wallet = ?", wallet).
				Updates(map[string]interface{}{"reward_claimed": true, "updated_at": now}).Error
		}
		return nil
	})
}

// HasConfirmedClaim reports whether a confirmed claim row exists.
func (s *Store) HasConfirmedClaim(wallet, kind string) (bool, error) {
	wallet = normalizeWallet(wallet)
	var count int64
	err := s.db.Model(&models.RewardClaim{}).
		Where("wallet = ? AND kind = ? AND status = ?", wallet, kind, models.ClaimConfirmed).
		Count(&count).Error
	return count > 0, err
}

// Claims lists every claim row for a wallet.
func (s *Store) Claims(wallet string) ([]models.RewardClaim, error) {
	wallet = normalizeWallet(wallet)
	var claims []models.RewardClaim
	err := s.db.Where("wallet = ?", wallet).Order("created_at").Find(&claims).Error
	return claims, err
}

// AllClaims lists every claim row; used by the reconciler.
func (s *Store) AllClaims() ([]models.RewardClaim, error) {
	var claims []models.RewardClaim
	err := s.db.Order("wallet, kind").Find(&claims).Error
	return claims, err
}

// UpsertProduct mirrors an on-chain product row.
func (s *Store) UpsertProduct(chainID uint64, seller, title, description, priceWei, status, buyer string, listedAt time.Time, soldAt *time.Time) error {
	seller = normalizeWallet(seller)
	buyer = normalizeWallet(buyer)
	now := s.now()
	record := models.ProductRecord{
		ID:          uuid.New(),
		ChainID:     chainID,
		Seller:      seller,
		Title:       title,
		Description: description,
		PriceWei:    priceWei,
		Status:      status,
		Buyer:       buyer,
		ListedAt:    listedAt,
		SoldAt:      soldAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     status,
			"buyer":      buyer,
			"sold_at":    soldAt,
			"updated_at": now,
		}),
	}).Create(&record).Error
}

// Products lists mirrored products, optionally filtered by status.
func (s *Store) Products(status string) ([]models.ProductRecord, error) {
	var records []models.ProductRecord
	query := s.db.Order("chain_id")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&records).Error
	return records, err
}

// RecordTransaction stores a completed sale keyed by event sequence so event
// replays stay idempotent.
func (s *Store) RecordTransaction(productChainID uint64, seller, buyer, amountWei string, sequence uint64) error {
	txRow := models.Transaction{
		ID:             uuid.New(),
		ProductChainID: productChainID,
		Seller:         normalizeWallet(seller),
		Buyer:          normalizeWallet(buyer),
		AmountWei:      amountWei,
		EventSequence:  sequence,
		CreatedAt:      s.now(),
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&txRow).Error
}

// Cursor returns the stored event cursor for the named consumer.
func (s *Store) Cursor(name string) (uint64, error) {
	var cursor models.EventCursor
	if err := s.db.Where("name = ?", name).First(&cursor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return cursor.Sequence, nil
}

// SaveCursor persists the event cursor for the named consumer.
func (s *Store) SaveCursor(name string, sequence uint64) error {
	cursor := models.EventCursor{Name: name, Sequence: sequence}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"sequence": sequence}),
	}).Create(&cursor).Error
}
