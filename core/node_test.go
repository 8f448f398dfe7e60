package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"girochain/core/events"
	"girochain/native/marketplace"
	"girochain/native/token"
	"girochain/storage"
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestNode(t *testing.T) (*Node, [20]byte) {
	t.Helper()
	owner := testAddress(0xAA)
	node, err := NewNode(storage.NewMemDB(), owner, token.Units(100_000))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node, owner
}

func TestGenesisBootstrapOnce(t *testing.T) {
	db := storage.NewMemDB()
	owner := testAddress(0xAA)
	node, err := NewNode(db, owner, token.Units(100_000))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	supply, _ := node.TotalSupply()
	if supply.Cmp(token.Units(100_000)) != 0 {
		t.Fatalf("unexpected genesis supply %s", supply)
	}

	// Reopening the same database must not re-run genesis, even with a
	// different owner argument.
	reopened, err := NewNode(db, testAddress(0xBB), token.Units(1))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	gotOwner, _ := reopened.TokenOwner()
	if gotOwner != owner {
		t.Fatal("genesis owner changed on reopen")
	}
	supply, _ = reopened.TotalSupply()
	if supply.Cmp(token.Units(100_000)) != 0 {
		t.Fatalf("supply changed on reopen: %s", supply)
	}
}

func TestGenesisSupplyCap(t *testing.T) {
	over := token.Units(10_000_001)
	if _, err := NewNode(storage.NewMemDB(), testAddress(0xAA), over); !errors.Is(err, token.ErrExceedsMaxSupply) {
		t.Fatalf("expected ErrExceedsMaxSupply, got %v", err)
	}
}

func TestOnboardingClaimScenario(t *testing.T) {
	node, _ := newTestNode(t)
	walletA := testAddress(0x01)

	amount, err := node.ClaimReward(walletA, token.RewardOnboarding)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount.Cmp(token.Units(50)) != 0 {
		t.Fatalf("expected 50 GIRO, got %s", amount)
	}
	balance, _ := node.BalanceOf(walletA)
	if balance.Cmp(token.Units(50)) != 0 {
		t.Fatalf("wallet balance %s", balance)
	}
	pool, _ := node.RewardPoolBalance()
	if pool.Cmp(token.Units(99_950)) != 0 {
		t.Fatalf("pool balance %s", pool)
	}
	claimed, _ := node.HasClaimedReward(walletA, token.RewardOnboarding)
	if !claimed {
		t.Fatal("claim flag not set")
	}
}

func TestPurchaseScenario(t *testing.T) {
	node, owner := newTestNode(t)
	walletB := testAddress(0x02)
	walletC := testAddress(0x03)

	id, err := node.ListProduct(walletB, "Vintage camera", "35mm, working", token.Units(10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if err := node.Transfer(owner, walletC, token.Units(10)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	if err := node.Approve(walletC, MarketplaceVault(), token.Units(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := node.BuyProduct(walletC, id); err != nil {
		t.Fatalf("buy: %v", err)
	}

	product, _ := node.GetProduct(id)
	if product.Status != marketplace.ProductSold {
		t.Fatalf("expected sold, got %s", product.Status)
	}
	sellerBalance, _ := node.BalanceOf(walletB)
	if sellerBalance.Cmp(token.Units(10)) != 0 {
		t.Fatalf("seller balance %s", sellerBalance)
	}
	buyerBalance, _ := node.BalanceOf(walletC)
	if buyerBalance.Sign() != 0 {
		t.Fatalf("buyer balance %s", buyerBalance)
	}
	// Pay-the-seller settlement keeps supply constant.
	supply, _ := node.TotalSupply()
	if supply.Cmp(token.Units(100_000)) != 0 {
		t.Fatalf("supply changed: %s", supply)
	}
}

func TestUnderfundedPurchaseScenario(t *testing.T) {
	node, owner := newTestNode(t)
	seller := testAddress(0x02)
	walletD := testAddress(0x04)

	id, _ := node.ListProduct(seller, "Lamp", "", token.Units(10))
	if err := node.Transfer(owner, walletD, token.Units(5)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := node.Approve(walletD, MarketplaceVault(), token.Units(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := node.BuyProduct(walletD, id); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	product, _ := node.GetProduct(id)
	if product.Status != marketplace.ProductActive {
		t.Fatalf("product must remain active, got %s", product.Status)
	}
}

func TestEventLogSequencesAndCursor(t *testing.T) {
	node, _ := newTestNode(t)
	wallet := testAddress(0x05)

	if _, err := node.ClaimReward(wallet, token.RewardOnboarding); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := node.ListProduct(wallet, "Mug", "", token.Units(3)); err != nil {
		t.Fatalf("list: %v", err)
	}

	all := node.Events(0, 0)
	if len(all) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(all))
	}
	for i, entry := range all {
		if entry.Sequence != uint64(i+1) {
			t.Fatalf("sequence gap at %d: %d", i, entry.Sequence)
		}
	}
	tail := node.Events(all[len(all)-1].Sequence-1, 0)
	if len(tail) != 1 || tail[0].Event.Type != events.TypeProductCreated {
		t.Fatalf("cursor query wrong: %+v", tail)
	}
}

func TestEventsSubscribeDeliversLive(t *testing.T) {
	node, _ := newTestNode(t)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	ch, cancel, backlog := node.EventsSubscribe(ctx, 0)
	defer cancel()
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(backlog))
	}

	wallet := testAddress(0x06)
	if _, err := node.ClaimReward(wallet, token.RewardOnboarding); err != nil {
		t.Fatalf("claim: %v", err)
	}

	select {
	case entry := <-ch:
		if entry.Event.Type != events.TypeTokenRewardClaimed {
			t.Fatalf("unexpected first live event %s", entry.Event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no live event delivered")
	}
}
