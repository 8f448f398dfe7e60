package state

import (
	"math/big"
	"testing"

	"girochain/core/types"
	"girochain/native/marketplace"
	"girochain/native/token"
	"girochain/storage"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger := NewLedger(storage.NewMemDB())
	var owner [20]byte
	owner[0] = 0xAA
	if err := ledger.InitializeToken(owner, token.Units(100_000)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return ledger
}

func TestInitializeTokenOnce(t *testing.T) {
	ledger := newLedger(t)
	var owner [20]byte
	owner[0] = 0xAA
	if err := ledger.InitializeToken(owner, token.Units(1)); err == nil {
		t.Fatal("expected second initialization to fail")
	}
	supply, err := ledger.TokenTotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(token.Units(100_000)) != 0 {
		t.Fatalf("unexpected supply %s", supply)
	}
	got, err := ledger.TokenOwner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if got != owner {
		t.Fatal("owner mismatch")
	}
	balance, err := ledger.GetAccount(owner[:])
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if balance.BalanceGiro.Cmp(token.Units(100_000)) != 0 {
		t.Fatalf("owner not funded: %s", balance.BalanceGiro)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	ledger := newLedger(t)
	addr := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}

	acc, err := ledger.GetAccount(addr)
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if acc.BalanceGiro.Sign() != 0 {
		t.Fatal("expected zero balance for fresh account")
	}

	acc.BalanceGiro = token.Units(42)
	acc.Nonce = 7
	if err := ledger.PutAccount(addr, acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := ledger.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Nonce != 7 || loaded.BalanceGiro.Cmp(token.Units(42)) != 0 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}

	if err := ledger.PutAccount(addr, &types.Account{BalanceGiro: big.NewInt(-1)}); err == nil {
		t.Fatal("expected negative balance rejection")
	}
}

func TestClaimFlagsPersist(t *testing.T) {
	ledger := newLedger(t)
	var wallet [20]byte
	wallet[0] = 0x01

	claimed, err := ledger.RewardClaimed(wallet, token.RewardOnboarding)
	if err != nil {
		t.Fatalf("claimed: %v", err)
	}
	if claimed {
		t.Fatal("fresh wallet must not be claimed")
	}
	if err := ledger.SetRewardClaimed(wallet, token.RewardOnboarding); err != nil {
		t.Fatalf("set claimed: %v", err)
	}
	claimed, _ = ledger.RewardClaimed(wallet, token.RewardOnboarding)
	if !claimed {
		t.Fatal("flag not persisted")
	}
	// Kinds are independent keys.
	claimed, _ = ledger.RewardClaimed(wallet, token.RewardFirstListing)
	if claimed {
		t.Fatal("unrelated kind flagged")
	}
}

func TestAllowanceRoundTrip(t *testing.T) {
	ledger := newLedger(t)
	var owner, spender [20]byte
	owner[0], spender[0] = 0x01, 0x02

	allowance, err := ledger.TokenAllowance(owner, spender)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if allowance.Sign() != 0 {
		t.Fatal("expected zero allowance")
	}
	if err := ledger.SetTokenAllowance(owner, spender, token.Units(5)); err != nil {
		t.Fatalf("set allowance: %v", err)
	}
	allowance, _ = ledger.TokenAllowance(owner, spender)
	if allowance.Cmp(token.Units(5)) != 0 {
		t.Fatalf("allowance mismatch: %s", allowance)
	}
	// Direction matters.
	reverse, _ := ledger.TokenAllowance(spender, owner)
	if reverse.Sign() != 0 {
		t.Fatal("reverse direction must stay zero")
	}
}

func TestProductRoundTrip(t *testing.T) {
	ledger := newLedger(t)
	var seller [20]byte
	seller[0] = 0x03

	if _, ok, err := ledger.MarketplaceGet(1); err != nil || ok {
		t.Fatalf("expected missing product, ok=%v err=%v", ok, err)
	}

	product := &marketplace.Product{
		ID:        1,
		Seller:    seller,
		Title:     "Mug",
		Price:     token.Units(10),
		Status:    marketplace.ProductActive,
		CreatedAt: 1_700_000_000,
	}
	if err := ledger.MarketplacePut(product); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ledger.SetMarketplaceCounter(1); err != nil {
		t.Fatalf("counter: %v", err)
	}

	loaded, ok, err := ledger.MarketplaceGet(1)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if loaded.Title != "Mug" || loaded.Price.Cmp(token.Units(10)) != 0 || loaded.Status != marketplace.ProductActive {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	counter, err := ledger.MarketplaceCounter()
	if err != nil || counter != 1 {
		t.Fatalf("counter round trip: %d %v", counter, err)
	}
}
