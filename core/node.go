package core

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"girochain/core/events"
	"girochain/core/state"
	"girochain/core/types"
	"girochain/native/marketplace"
	"girochain/native/token"
	"girochain/storage"
)

// MarketplaceVault is the deterministic spender address buyers approve before
// calling Buy. It mirrors the role of the marketplace contract address in the
// original deployment.
func MarketplaceVault() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("girochain/marketplace-vault"))[12:])
	return addr
}

// Node is the central controller, wiring storage, ledger state, and the two
// engines together. A single mutex serializes every write, which is the whole
// concurrency story: concurrent claims race here, not in engine code.
type Node struct {
	db      storage.Database
	ledger  *state.Ledger
	token   *token.Engine
	market  *marketplace.Engine
	log     *eventLog
	stateMu sync.Mutex
}

// nodeEmitter bridges engine events into the sequenced log. Engine events all
// carry an Event() converter to the attribute form.
type nodeEmitter struct {
	log *eventLog
}

func (e *nodeEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	e.log.append(carrier.Event())
}

// NewNode opens (or bootstraps) the ledger. On first run the token metadata is
// written with the supplied owner and initial supply; afterwards both
// arguments are ignored in favour of the persisted genesis.
func NewNode(db storage.Database, owner [20]byte, initialSupply *big.Int) (*Node, error) {
	if initialSupply == nil {
		initialSupply = token.DefaultInitialSupply()
	}
	if initialSupply.Cmp(token.MaxSupply()) > 0 {
		return nil, token.ErrExceedsMaxSupply
	}

	ledger := state.NewLedger(db)
	initialized, err := ledger.Initialized()
	if err != nil {
		return nil, err
	}
	if !initialized {
		if err := ledger.InitializeToken(owner, initialSupply); err != nil {
			return nil, fmt.Errorf("bootstrap ledger: %w", err)
		}
	}

	node := &Node{
		db:     db,
		ledger: ledger,
		token:  token.NewEngine(),
		market: marketplace.NewEngine(),
		log:    newEventLog(),
	}
	emitter := &nodeEmitter{log: node.log}
	node.token.SetState(ledger)
	node.token.SetEmitter(emitter)
	node.market.SetState(ledger)
	node.market.SetSettlement(node.token)
	node.market.SetVault(MarketplaceVault())
	node.market.SetEmitter(emitter)
	return node, nil
}

// --- Token operations ---

func (n *Node) ClaimReward(caller [20]byte, kind token.RewardKind) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.Claim(caller, kind)
}

func (n *Node) CanClaimReward(wallet [20]byte, kind token.RewardKind) (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.CanClaim(wallet, kind)
}

func (n *Node) HasClaimedReward(wallet [20]byte, kind token.RewardKind) (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.HasClaimed(wallet, kind)
}

func (n *Node) MintRewardPool(caller [20]byte, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.MintRewardPool(caller, amount)
}

func (n *Node) Transfer(from, to [20]byte, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.Transfer(from, to, amount)
}

func (n *Node) Approve(owner, spender [20]byte, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.Approve(owner, spender, amount)
}

func (n *Node) Allowance(owner, spender [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.Allowance(owner, spender)
}

func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.BalanceOf(addr)
}

func (n *Node) TotalSupply() (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.TotalSupply()
}

func (n *Node) RewardPoolBalance() (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.RewardPoolBalance()
}

func (n *Node) Pause(caller [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.Pause(caller)
}

func (n *Node) Unpause(caller [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.Unpause(caller)
}

func (n *Node) Paused() (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.Paused()
}

func (n *Node) TokenOwner() ([20]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.token.Owner()
}

// --- Marketplace operations ---

func (n *Node) ListProduct(seller [20]byte, title, description string, price *big.Int) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.market.List(seller, title, description, price)
}

func (n *Node) BuyProduct(buyer [20]byte, id uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.market.Buy(buyer, id)
}

func (n *Node) CancelProduct(caller [20]byte, id uint64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.market.Cancel(caller, id)
}

func (n *Node) GetProduct(id uint64) (*marketplace.Product, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.market.Get(id)
}

func (n *Node) ActiveProducts() ([]uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.market.ActiveProducts()
}

func (n *Node) SellerProducts(seller [20]byte) ([]uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.market.SellerProducts(seller)
}

func (n *Node) ProductCounter() (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.market.ProductCounter()
}

// --- Events ---

// Events returns up to limit log entries with sequence greater than cursor.
func (n *Node) Events(cursor uint64, limit int) []SequencedEvent {
	return n.log.after(cursor, limit)
}

// EventsSubscribe opens a live event feed starting after cursor. The backlog
// covers entries already logged; the channel carries new ones until the
// context ends.
func (n *Node) EventsSubscribe(ctx context.Context, cursor uint64) (<-chan SequencedEvent, func(), []SequencedEvent) {
	return n.log.subscribe(ctx, cursor)
}
