package marketplace

import (
	"errors"
	"math/big"
	"time"

	"girochain/core/events"
)

var errNilState = errors.New("marketplace engine: state not configured")
var errNilSettlement = errors.New("marketplace engine: settlement not configured")

// engineState is the narrow view of ledger state the marketplace engine needs.
type engineState interface {
	MarketplacePut(product *Product) error
	MarketplaceGet(id uint64) (*Product, bool, error)
	MarketplaceCounter() (uint64, error)
	SetMarketplaceCounter(counter uint64) error
}

// settlement is the token-engine surface used to pay the seller. The buyer
// must have approved the marketplace vault address as spender beforehand.
type settlement interface {
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
}

// Engine wires the product state machine with the token settlement path.
// Purchases pay the seller directly; the burn variant of the original pair of
// contracts was dropped deliberately.
type Engine struct {
	state      engineState
	settlement settlement
	vault      [20]byte
	emitter    events.Emitter
	nowFn      func() int64
}

// NewEngine creates a marketplace engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetSettlement configures the token engine used to move funds on purchase.
func (e *Engine) SetSettlement(s settlement) { e.settlement = s }

// SetVault configures the spender address buyers approve for settlement.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// Vault returns the spender address buyers must approve.
func (e *Engine) Vault() [20]byte { return e.vault }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// List creates a new Active product owned by seller and returns its id.
func (e *Engine) List(seller [20]byte, title, description string, price *big.Int) (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	product, err := SanitizeProduct(&Product{
		Seller:      seller,
		Title:       title,
		Description: description,
		Price:       price,
		Status:      ProductActive,
	})
	if err != nil {
		return 0, err
	}
	counter, err := e.state.MarketplaceCounter()
	if err != nil {
		return 0, err
	}
	counter++
	product.ID = counter
	product.CreatedAt = e.nowFn()
	if err := e.state.MarketplacePut(product); err != nil {
		return 0, err
	}
	if err := e.state.SetMarketplaceCounter(counter); err != nil {
		return 0, err
	}
	e.emit(events.ProductCreated{
		ProductID: product.ID,
		Seller:    product.Seller,
		Title:     product.Title,
		Price:     new(big.Int).Set(product.Price),
		CreatedAt: product.CreatedAt,
	})
	return product.ID, nil
}

// Buy settles price from buyer to seller and moves the product to its
// terminal Sold state. A settlement failure leaves the product Active.
func (e *Engine) Buy(buyer [20]byte, id uint64) error {
	if e.state == nil {
		return errNilState
	}
	if e.settlement == nil {
		return errNilSettlement
	}
	product, ok, err := e.state.MarketplaceGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProductNotFound
	}
	if product.Status != ProductActive {
		return ErrNotActive
	}
	if buyer == product.Seller {
		return ErrSelfPurchase
	}
	if err := e.settlement.TransferFrom(e.vault, buyer, product.Seller, product.Price); err != nil {
		return err
	}
	product = product.Clone()
	product.Status = ProductSold
	product.Buyer = buyer
	product.SoldAt = e.nowFn()
	if err := e.state.MarketplacePut(product); err != nil {
		return err
	}
	e.emit(events.ProductSold{
		ProductID: product.ID,
		Seller:    product.Seller,
		Buyer:     buyer,
		Price:     new(big.Int).Set(product.Price),
		SoldAt:    product.SoldAt,
	})
	return nil
}

// Cancel moves an Active product to its terminal Cancelled state. Only the
// seller may cancel.
func (e *Engine) Cancel(caller [20]byte, id uint64) error {
	if e.state == nil {
		return errNilState
	}
	product, ok, err := e.state.MarketplaceGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProductNotFound
	}
	if caller != product.Seller {
		return ErrNotSeller
	}
	if product.Status != ProductActive {
		return ErrNotActive
	}
	product = product.Clone()
	product.Status = ProductCancelled
	if err := e.state.MarketplacePut(product); err != nil {
		return err
	}
	e.emit(events.ProductCancelled{ProductID: product.ID, Seller: product.Seller})
	return nil
}

// Get returns a copy of the stored product.
func (e *Engine) Get(id uint64) (*Product, error) {
	if e.state == nil {
		return nil, errNilState
	}
	product, ok, err := e.state.MarketplaceGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	return product.Clone(), nil
}

// ActiveProducts returns the ids of all listings still open for purchase.
// Linear scan over the counter range, fine at this scale.
func (e *Engine) ActiveProducts() ([]uint64, error) {
	return e.scan(func(p *Product) bool { return p.Status == ProductActive })
}

// SellerProducts returns the ids of every listing created by seller,
// regardless of status.
func (e *Engine) SellerProducts(seller [20]byte) ([]uint64, error) {
	return e.scan(func(p *Product) bool { return p.Seller == seller })
}

// ProductCounter returns the id of the most recent listing.
func (e *Engine) ProductCounter() (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	return e.state.MarketplaceCounter()
}

func (e *Engine) scan(keep func(*Product) bool) ([]uint64, error) {
	if e.state == nil {
		return nil, errNilState
	}
	counter, err := e.state.MarketplaceCounter()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, counter)
	for id := uint64(1); id <= counter; id++ {
		product, ok, err := e.state.MarketplaceGet(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if keep(product) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
