package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reward claim lifecycle states mirrored off chain.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "PENDING"
	ClaimConfirmed ClaimStatus = "CONFIRMED"
	ClaimFailed    ClaimStatus = "FAILED"
)

// User stores marketplace account metadata keyed by wallet address.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Wallet    string    `gorm:"uniqueIndex;size:64"`
	Username  string    `gorm:"size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnboardingStatus tracks profile completion and the onboarding reward flag.
type OnboardingStatus struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Wallet           string    `gorm:"uniqueIndex;size:64"`
	ProfileCompleted bool
	RewardClaimed    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AchievementProgress accumulates per-wallet marketplace activity counters.
type AchievementProgress struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Wallet         string    `gorm:"uniqueIndex;size:64"`
	ListingsCount  int       `gorm:"not null;default:0"`
	SalesCount     int       `gorm:"not null;default:0"`
	PurchasesCount int       `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductRecord mirrors an on-chain marketplace product.
type ProductRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChainID     uint64    `gorm:"uniqueIndex"`
	Seller      string    `gorm:"index;size:64"`
	Title       string    `gorm:"size:256"`
	Description string    `gorm:"type:text"`
	PriceWei    string    `gorm:"size:96"`
	Status      string    `gorm:"size:16;index"`
	Buyer       string    `gorm:"size:64"`
	ListedAt    time.Time
	SoldAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transaction captures a completed marketplace sale.
type Transaction struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductChainID uint64    `gorm:"index"`
	Seller         string    `gorm:"index;size:64"`
	Buyer          string    `gorm:"index;size:64"`
	AmountWei      string    `gorm:"size:96"`
	EventSequence  uint64    `gorm:"uniqueIndex"`
	CreatedAt      time.Time
}

// RewardClaim records each reward claim pushed through the gateway.
type RewardClaim struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey"`
	Wallet    string      `gorm:"size:64;index;uniqueIndex:idx_claim_wallet_kind"`
	Kind      string      `gorm:"size:32;uniqueIndex:idx_claim_wallet_kind"`
	AmountWei string      `gorm:"size:96"`
	Status    ClaimStatus `gorm:"size:16;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProgressEvent marks a counter bump with the node event sequence that
// produced it. The unique index makes replayed batches leave the counters
// untouched.
type ProgressEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence  uint64    `gorm:"uniqueIndex:idx_progress_event"`
	Counter   string    `gorm:"size:32;uniqueIndex:idx_progress_event"`
	Wallet    string    `gorm:"index;size:64"`
	CreatedAt time.Time
}

// EventCursor persists the watcher position in the node event log.
type EventCursor struct {
	Name     string `gorm:"primaryKey;size:32"`
	Sequence uint64
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&OnboardingStatus{},
		&AchievementProgress{},
		&ProductRecord{},
		&ProgressEvent{},
		&Transaction{},
		&RewardClaim{},
		&EventCursor{},
	)
}
