package marketplace

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"girochain/core/events"
	"girochain/native/token"
)

type mockState struct {
	products map[uint64]*Product
	counter  uint64
}

func newMockState() *mockState {
	return &mockState{products: make(map[uint64]*Product)}
}

func (m *mockState) MarketplacePut(product *Product) error {
	m.products[product.ID] = product.Clone()
	return nil
}

func (m *mockState) MarketplaceGet(id uint64) (*Product, bool, error) {
	product, ok := m.products[id]
	if !ok {
		return nil, false, nil
	}
	return product.Clone(), true, nil
}

func (m *mockState) MarketplaceCounter() (uint64, error) { return m.counter, nil }

func (m *mockState) SetMarketplaceCounter(counter uint64) error {
	m.counter = counter
	return nil
}

// mockSettlement tracks balances and allowances the way the token engine
// would, without pulling in the full ledger state.
type mockSettlement struct {
	balances   map[[20]byte]*big.Int
	allowances map[[40]byte]*big.Int
	calls      int
}

func newMockSettlement() *mockSettlement {
	return &mockSettlement{
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[[40]byte]*big.Int),
	}
}

func settlementKey(owner, spender [20]byte) [40]byte {
	var key [40]byte
	copy(key[:20], owner[:])
	copy(key[20:], spender[:])
	return key
}

func (m *mockSettlement) fund(addr [20]byte, amount *big.Int) {
	m.balances[addr] = new(big.Int).Set(amount)
}

func (m *mockSettlement) approve(owner, spender [20]byte, amount *big.Int) {
	m.allowances[settlementKey(owner, spender)] = new(big.Int).Set(amount)
}

func (m *mockSettlement) balance(addr [20]byte) *big.Int {
	if b, ok := m.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (m *mockSettlement) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	m.calls++
	allowance, ok := m.allowances[settlementKey(from, spender)]
	if !ok || allowance.Cmp(amount) < 0 {
		return token.ErrInsufficientAllowance
	}
	balance := m.balance(from)
	if balance.Cmp(amount) < 0 {
		return token.ErrInsufficientBalance
	}
	m.balances[from] = balance.Sub(balance, amount)
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
	m.allowances[settlementKey(from, spender)] = allowance.Sub(allowance, amount)
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newEngine(t *testing.T) (*Engine, *mockState, *mockSettlement, *captureEmitter) {
	t.Helper()
	st := newMockState()
	settle := newMockSettlement()
	emitter := &captureEmitter{}
	engine := NewEngine()
	engine.SetState(st)
	engine.SetSettlement(settle)
	engine.SetVault(newTestAddress(0xEE))
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine, st, settle, emitter
}

func TestListAssignsMonotonicIDs(t *testing.T) {
	engine, _, _, emitter := newEngine(t)
	seller := newTestAddress(0x01)

	first, err := engine.List(seller, "Handmade mug", "ceramic", token.Units(10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := engine.List(seller, "Poster", "", token.Units(5))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
	counter, _ := engine.ProductCounter()
	if counter != 2 {
		t.Fatalf("expected counter 2, got %d", counter)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 creation events, got %d", len(emitter.events))
	}
	if emitter.events[0].EventType() != events.TypeProductCreated {
		t.Fatalf("unexpected event type %s", emitter.events[0].EventType())
	}
}

func TestListValidation(t *testing.T) {
	engine, _, _, _ := newEngine(t)
	seller := newTestAddress(0x01)

	if _, err := engine.List(seller, "   ", "desc", token.Units(10)); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	if _, err := engine.List(seller, "Mug", "desc", big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestBuyPaysSellerAndSealsProduct(t *testing.T) {
	engine, _, settle, emitter := newEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)

	id, err := engine.List(seller, "Mug", "ceramic", token.Units(10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	settle.fund(buyer, token.Units(50))
	settle.approve(buyer, engine.Vault(), token.Units(10))

	if err := engine.Buy(buyer, id); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if settle.balance(seller).Cmp(token.Units(10)) != 0 {
		t.Fatalf("seller not paid, balance %s", settle.balance(seller))
	}
	if settle.balance(buyer).Cmp(token.Units(40)) != 0 {
		t.Fatalf("buyer balance wrong: %s", settle.balance(buyer))
	}
	product, err := engine.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if product.Status != ProductSold {
		t.Fatalf("expected sold, got %s", product.Status)
	}
	if product.Buyer != buyer {
		t.Fatal("buyer not recorded")
	}
	if product.SoldAt != 1_700_000_000 {
		t.Fatalf("soldAt not recorded: %d", product.SoldAt)
	}

	var sawSold bool
	for _, evt := range emitter.events {
		if evt.EventType() == events.TypeProductSold {
			sawSold = true
		}
	}
	if !sawSold {
		t.Fatal("expected marketplace.product.sold event")
	}
}

func TestBuyRejectsSelfPurchase(t *testing.T) {
	engine, _, settle, _ := newEngine(t)
	seller := newTestAddress(0x01)

	id, _ := engine.List(seller, "Mug", "", token.Units(10))
	settle.fund(seller, token.Units(100))
	settle.approve(seller, engine.Vault(), token.Units(100))

	if err := engine.Buy(seller, id); !errors.Is(err, ErrSelfPurchase) {
		t.Fatalf("expected ErrSelfPurchase, got %v", err)
	}
	if settle.calls != 0 {
		t.Fatal("settlement must not run for a self purchase")
	}
}

func TestBuyFailedSettlementLeavesActive(t *testing.T) {
	engine, _, settle, _ := newEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)

	id, _ := engine.List(seller, "Mug", "", token.Units(10))
	// Balance 5, price 10: approval covers the price but funds do not.
	settle.fund(buyer, token.Units(5))
	settle.approve(buyer, engine.Vault(), token.Units(10))

	if err := engine.Buy(buyer, id); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	product, _ := engine.Get(id)
	if product.Status != ProductActive {
		t.Fatalf("product must stay active, got %s", product.Status)
	}

	// No approval at all.
	buyer2 := newTestAddress(0x03)
	settle.fund(buyer2, token.Units(100))
	if err := engine.Buy(buyer2, id); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	engine, _, settle, _ := newEngine(t)
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)

	sold, _ := engine.List(seller, "Mug", "", token.Units(10))
	cancelled, _ := engine.List(seller, "Poster", "", token.Units(5))
	settle.fund(buyer, token.Units(100))
	settle.approve(buyer, engine.Vault(), token.Units(100))

	if err := engine.Buy(buyer, sold); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := engine.Cancel(seller, cancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	for _, id := range []uint64{sold, cancelled} {
		if err := engine.Buy(buyer, id); !errors.Is(err, ErrNotActive) {
			t.Fatalf("expected ErrNotActive on buy of %d, got %v", id, err)
		}
		if err := engine.Cancel(seller, id); !errors.Is(err, ErrNotActive) {
			t.Fatalf("expected ErrNotActive on cancel of %d, got %v", id, err)
		}
	}
}

func TestCancelRequiresSeller(t *testing.T) {
	engine, _, _, _ := newEngine(t)
	seller := newTestAddress(0x01)
	stranger := newTestAddress(0x04)

	id, _ := engine.List(seller, "Mug", "", token.Units(10))
	if err := engine.Cancel(stranger, id); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}
	if err := engine.Cancel(seller, 99); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestViewsFilterByStatusAndSeller(t *testing.T) {
	engine, _, settle, _ := newEngine(t)
	alice := newTestAddress(0x01)
	bob := newTestAddress(0x02)
	carol := newTestAddress(0x03)

	a1, _ := engine.List(alice, "Mug", "", token.Units(10))
	b1, _ := engine.List(bob, "Poster", "", token.Units(5))
	a2, _ := engine.List(alice, "Lamp", "", token.Units(20))

	settle.fund(carol, token.Units(100))
	settle.approve(carol, engine.Vault(), token.Units(100))
	if err := engine.Buy(carol, b1); err != nil {
		t.Fatalf("buy: %v", err)
	}

	active, err := engine.ActiveProducts()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 || active[0] != a1 || active[1] != a2 {
		t.Fatalf("unexpected active ids %v", active)
	}

	mine, err := engine.SellerProducts(alice)
	if err != nil {
		t.Fatalf("seller products: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 alice listings, got %v", mine)
	}
	theirs, _ := engine.SellerProducts(bob)
	if len(theirs) != 1 || theirs[0] != b1 {
		t.Fatalf("expected bob's sold listing in view, got %v", theirs)
	}
}
