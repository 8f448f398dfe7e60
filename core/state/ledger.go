package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"girochain/core/types"
	"girochain/native/marketplace"
	"girochain/native/token"
	"girochain/storage"
)

var (
	accountPrefix   = []byte("account:")
	allowancePrefix = []byte("token-allowance:")
	claimPrefix     = []byte("token-claim:")
	tokenMetaKey    = ethcrypto.Keccak256([]byte("token-meta"))
	productPrefix   = []byte("market-product:")
	productCountKey = ethcrypto.Keccak256([]byte("market-counter"))
)

// tokenMetadata is the singleton record holding ledger-wide token state.
type tokenMetadata struct {
	Owner       [20]byte `json:"owner"`
	Paused      bool     `json:"paused"`
	TotalSupply *big.Int `json:"totalSupply"`
}

// storedProduct mirrors marketplace.Product for persistence.
type storedProduct struct {
	ID          uint64   `json:"id"`
	Seller      [20]byte `json:"seller"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       *big.Int `json:"price"`
	Status      uint8    `json:"status"`
	CreatedAt   int64    `json:"createdAt"`
	SoldAt      int64    `json:"soldAt,omitempty"`
	Buyer       [20]byte `json:"buyer"`
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func allowanceKey(owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len(allowancePrefix)+40)
	buf = append(buf, allowancePrefix...)
	buf = append(buf, owner[:]...)
	buf = append(buf, spender[:]...)
	return ethcrypto.Keccak256(buf)
}

func claimKey(wallet [20]byte, kind token.RewardKind) []byte {
	buf := make([]byte, 0, len(claimPrefix)+20+len(kind)+1)
	buf = append(buf, claimPrefix...)
	buf = append(buf, wallet[:]...)
	buf = append(buf, ':')
	buf = append(buf, []byte(kind)...)
	return ethcrypto.Keccak256(buf)
}

func productKey(id uint64) []byte {
	buf := make([]byte, len(productPrefix)+8)
	copy(buf, productPrefix)
	binary.BigEndian.PutUint64(buf[len(productPrefix):], id)
	return ethcrypto.Keccak256(buf)
}

// Ledger persists accounts, token metadata, claim flags, allowances, and
// marketplace products in a key-value database. It satisfies the state
// interfaces of both the token and marketplace engines.
type Ledger struct {
	db storage.Database
}

// NewLedger wraps the supplied database.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) load(key []byte, out interface{}) (bool, error) {
	ok, err := l.db.Has(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	raw, err := l.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) store(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return l.db.Put(key, raw)
}

// Initialized reports whether the genesis token metadata has been written.
func (l *Ledger) Initialized() (bool, error) {
	return l.db.Has(tokenMetaKey)
}

// InitializeToken writes the genesis token metadata and credits the owner
// with the initial supply. It must run exactly once per database.
func (l *Ledger) InitializeToken(owner [20]byte, initialSupply *big.Int) error {
	done, err := l.Initialized()
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("state: token already initialized")
	}
	if initialSupply == nil || initialSupply.Sign() < 0 {
		return fmt.Errorf("state: invalid initial supply")
	}
	meta := &tokenMetadata{Owner: owner, TotalSupply: new(big.Int).Set(initialSupply)}
	if err := l.store(tokenMetaKey, meta); err != nil {
		return err
	}
	return l.PutAccount(owner[:], &types.Account{BalanceGiro: new(big.Int).Set(initialSupply)})
}

func (l *Ledger) tokenMeta() (*tokenMetadata, error) {
	meta := &tokenMetadata{}
	ok, err := l.load(tokenMetaKey, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("state: token not initialized")
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = big.NewInt(0)
	}
	return meta, nil
}

// GetAccount reconstructs the account stored under the provided address.
// Unknown addresses yield a zero-balance account.
func (l *Ledger) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	account := &types.Account{BalanceGiro: big.NewInt(0)}
	if _, err := l.load(accountKey(addr), account); err != nil {
		return nil, err
	}
	if account.BalanceGiro == nil {
		account.BalanceGiro = big.NewInt(0)
	}
	return account, nil
}

// PutAccount persists the provided account state under the supplied address.
func (l *Ledger) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("nil account")
	}
	if account.BalanceGiro == nil {
		account.BalanceGiro = big.NewInt(0)
	}
	if _, overflow := uint256.FromBig(account.BalanceGiro); overflow {
		return fmt.Errorf("balance overflow")
	}
	if account.BalanceGiro.Sign() < 0 {
		return fmt.Errorf("negative balance")
	}
	return l.store(accountKey(addr), account)
}

// TokenOwner returns the pool-holding owner configured at genesis.
func (l *Ledger) TokenOwner() ([20]byte, error) {
	meta, err := l.tokenMeta()
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Owner, nil
}

// TokenPaused reports the ledger-wide pause flag.
func (l *Ledger) TokenPaused() (bool, error) {
	meta, err := l.tokenMeta()
	if err != nil {
		return false, err
	}
	return meta.Paused, nil
}

// SetTokenPaused flips the ledger-wide pause flag.
func (l *Ledger) SetTokenPaused(paused bool) error {
	meta, err := l.tokenMeta()
	if err != nil {
		return err
	}
	meta.Paused = paused
	return l.store(tokenMetaKey, meta)
}

// TokenTotalSupply returns the minted supply.
func (l *Ledger) TokenTotalSupply() (*big.Int, error) {
	meta, err := l.tokenMeta()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(meta.TotalSupply), nil
}

// SetTokenTotalSupply overwrites the minted supply.
func (l *Ledger) SetTokenTotalSupply(supply *big.Int) error {
	meta, err := l.tokenMeta()
	if err != nil {
		return err
	}
	if supply == nil || supply.Sign() < 0 {
		return fmt.Errorf("state: invalid supply")
	}
	meta.TotalSupply = new(big.Int).Set(supply)
	return l.store(tokenMetaKey, meta)
}

// TokenAllowance returns the remaining owner→spender allowance.
func (l *Ledger) TokenAllowance(owner, spender [20]byte) (*big.Int, error) {
	allowance := big.NewInt(0)
	if _, err := l.load(allowanceKey(owner, spender), allowance); err != nil {
		return nil, err
	}
	return allowance, nil
}

// SetTokenAllowance overwrites the owner→spender allowance.
func (l *Ledger) SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid allowance")
	}
	return l.store(allowanceKey(owner, spender), amount)
}

// RewardClaimed reports the monotonic claim flag for (wallet, kind). Key
// presence is the flag; flags are never written false.
func (l *Ledger) RewardClaimed(wallet [20]byte, kind token.RewardKind) (bool, error) {
	return l.db.Has(claimKey(wallet, kind))
}

// SetRewardClaimed records the claim for (wallet, kind).
func (l *Ledger) SetRewardClaimed(wallet [20]byte, kind token.RewardKind) error {
	return l.db.Put(claimKey(wallet, kind), []byte{1})
}

// MarketplacePut persists a product record.
func (l *Ledger) MarketplacePut(product *marketplace.Product) error {
	if product == nil {
		return fmt.Errorf("state: nil product")
	}
	stored := &storedProduct{
		ID:          product.ID,
		Seller:      product.Seller,
		Title:       product.Title,
		Description: product.Description,
		Price:       product.Price,
		Status:      uint8(product.Status),
		CreatedAt:   product.CreatedAt,
		SoldAt:      product.SoldAt,
		Buyer:       product.Buyer,
	}
	return l.store(productKey(product.ID), stored)
}

// MarketplaceGet loads a product record by id.
func (l *Ledger) MarketplaceGet(id uint64) (*marketplace.Product, bool, error) {
	stored := &storedProduct{}
	ok, err := l.load(productKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	product := &marketplace.Product{
		ID:          stored.ID,
		Seller:      stored.Seller,
		Title:       stored.Title,
		Description: stored.Description,
		Price:       stored.Price,
		Status:      marketplace.ProductStatus(stored.Status),
		CreatedAt:   stored.CreatedAt,
		SoldAt:      stored.SoldAt,
		Buyer:       stored.Buyer,
	}
	if product.Price == nil {
		product.Price = big.NewInt(0)
	}
	return product, true, nil
}

// MarketplaceCounter returns the id of the most recent listing.
func (l *Ledger) MarketplaceCounter() (uint64, error) {
	ok, err := l.db.Has(productCountKey)
	if err != nil || !ok {
		return 0, err
	}
	raw, err := l.db.Get(productCountKey)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: malformed product counter")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SetMarketplaceCounter overwrites the listing counter.
func (l *Ledger) SetMarketplaceCounter(counter uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)
	return l.db.Put(productCountKey, buf)
}
