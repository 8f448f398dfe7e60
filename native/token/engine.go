package token

import (
	"errors"
	"math/big"

	"girochain/core/events"
	"girochain/core/types"
)

var errNilState = errors.New("token engine: state not configured")

// engineState is the narrow view of ledger state the token engine relies on.
type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	TokenOwner() ([20]byte, error)
	TokenPaused() (bool, error)
	SetTokenPaused(paused bool) error
	TokenTotalSupply() (*big.Int, error)
	SetTokenTotalSupply(supply *big.Int) error
	TokenAllowance(owner, spender [20]byte) (*big.Int, error)
	SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error
	RewardClaimed(wallet [20]byte, kind RewardKind) (bool, error)
	SetRewardClaimed(wallet [20]byte, kind RewardKind) error
}

// Engine owns the reward-ledger semantics: ERC20-equivalent balance movement,
// the bounded reward pool, and the claim-once flags per wallet and kind.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a token engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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

func (e *Engine) requireState() error {
	if e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) requireActive() error {
	paused, err := e.state.TokenPaused()
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) account(addr [20]byte) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	if acc.BalanceGiro == nil {
		acc.BalanceGiro = big.NewInt(0)
	}
	return acc, nil
}

// move debits from and credits to without any pause or allowance checks; all
// call sites validate first.
func (e *Engine) move(from, to [20]byte, amount *big.Int) error {
	fromAcc, err := e.account(from)
	if err != nil {
		return err
	}
	if fromAcc.BalanceGiro.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := e.account(to)
	if err != nil {
		return err
	}
	fromAcc.BalanceGiro = new(big.Int).Sub(fromAcc.BalanceGiro, amount)
	if from == to {
		// Self transfers keep the balance unchanged once both legs apply.
		toAcc = fromAcc
	}
	toAcc.BalanceGiro = new(big.Int).Add(toAcc.BalanceGiro, amount)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	if from != to {
		if err := e.state.PutAccount(to[:], toAcc); err != nil {
			return err
		}
	}
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Claim credits the fixed reward for kind to caller at most once. The owner
// balance acts as the reward pool and must cover the full amount.
func (e *Engine) Claim(caller [20]byte, kind RewardKind) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, ErrUnknownRewardKind
	}
	if err := e.requireActive(); err != nil {
		return nil, err
	}
	claimed, err := e.state.RewardClaimed(caller, kind)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}
	owner, err := e.state.TokenOwner()
	if err != nil {
		return nil, err
	}
	amount := RewardAmount(kind)
	pool, err := e.account(owner)
	if err != nil {
		return nil, err
	}
	if pool.BalanceGiro.Cmp(amount) < 0 {
		return nil, ErrInsufficientPool
	}
	if err := e.move(owner, caller, amount); err != nil {
		return nil, err
	}
	// Flag flips only after the funds moved so a failed transfer leaves the
	// claim available.
	if err := e.state.SetRewardClaimed(caller, kind); err != nil {
		return nil, err
	}
	e.emit(events.TokenRewardClaimed{Wallet: caller, Kind: kind.String(), Amount: new(big.Int).Set(amount)})
	e.emit(events.TokenTransferred{From: owner, To: caller, Amount: new(big.Int).Set(amount)})
	return amount, nil
}

// CanClaim reports whether a claim for (wallet, kind) would currently pass the
// flag and pool checks. It is advisory; Claim re-validates.
func (e *Engine) CanClaim(wallet [20]byte, kind RewardKind) (bool, error) {
	if err := e.requireState(); err != nil {
		return false, err
	}
	if !kind.Valid() {
		return false, ErrUnknownRewardKind
	}
	claimed, err := e.state.RewardClaimed(wallet, kind)
	if err != nil {
		return false, err
	}
	if claimed {
		return false, nil
	}
	pool, err := e.RewardPoolBalance()
	if err != nil {
		return false, err
	}
	return pool.Cmp(RewardAmount(kind)) >= 0, nil
}

// HasClaimed returns the monotonic claim flag for (wallet, kind).
func (e *Engine) HasClaimed(wallet [20]byte, kind RewardKind) (bool, error) {
	if err := e.requireState(); err != nil {
		return false, err
	}
	if !kind.Valid() {
		return false, ErrUnknownRewardKind
	}
	return e.state.RewardClaimed(wallet, kind)
}

// MintRewardPool mints amount into the owner-held pool, bounded by MaxSupply.
func (e *Engine) MintRewardPool(caller [20]byte, amount *big.Int) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	owner, err := e.state.TokenOwner()
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrUnauthorized
	}
	supply, err := e.TotalSupply()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(supply, amount)
	if next.Cmp(MaxSupply()) > 0 {
		return ErrExceedsMaxSupply
	}
	pool, err := e.account(owner)
	if err != nil {
		return err
	}
	pool.BalanceGiro = new(big.Int).Add(pool.BalanceGiro, amount)
	if err := e.state.PutAccount(owner[:], pool); err != nil {
		return err
	}
	if err := e.state.SetTokenTotalSupply(next); err != nil {
		return err
	}
	e.emit(events.TokenPoolMinted{Owner: owner, Amount: new(big.Int).Set(amount), TotalSupply: next})
	return nil
}

// Transfer moves amount from the caller to the recipient.
func (e *Engine) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := e.requireActive(); err != nil {
		return err
	}
	if err := e.move(from, to, amount); err != nil {
		return err
	}
	e.emit(events.TokenTransferred{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Approve grants spender the right to pull up to amount from owner. A zero
// amount clears the allowance, matching ERC20.
func (e *Engine) Approve(owner, spender [20]byte, amount *big.Int) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.requireActive(); err != nil {
		return err
	}
	if err := e.state.SetTokenAllowance(owner, spender, new(big.Int).Set(amount)); err != nil {
		return err
	}
	e.emit(events.TokenApproved{Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// TransferFrom spends the (from → spender) allowance to move amount to the
// recipient. The marketplace settlement path runs through here.
func (e *Engine) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if err := e.requireState(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := e.requireActive(); err != nil {
		return err
	}
	allowance, err := e.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := e.move(from, to, amount); err != nil {
		return err
	}
	remaining := new(big.Int).Sub(allowance, amount)
	if err := e.state.SetTokenAllowance(from, spender, remaining); err != nil {
		return err
	}
	e.emit(events.TokenTransferred{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Pause freezes every balance-moving operation until Unpause.
func (e *Engine) Pause(caller [20]byte) error {
	if err := e.requireState(); err != nil {
		return err
	}
	owner, err := e.state.TokenOwner()
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrUnauthorized
	}
	paused, err := e.state.TokenPaused()
	if err != nil {
		return err
	}
	if paused {
		return ErrAlreadyPaused
	}
	if err := e.state.SetTokenPaused(true); err != nil {
		return err
	}
	e.emit(events.TokenPaused{Caller: caller})
	return nil
}

// Unpause restores normal operation without touching balances.
func (e *Engine) Unpause(caller [20]byte) error {
	if err := e.requireState(); err != nil {
		return err
	}
	owner, err := e.state.TokenOwner()
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrUnauthorized
	}
	paused, err := e.state.TokenPaused()
	if err != nil {
		return err
	}
	if !paused {
		return ErrNotPaused
	}
	if err := e.state.SetTokenPaused(false); err != nil {
		return err
	}
	e.emit(events.TokenUnpaused{Caller: caller})
	return nil
}

// BalanceOf returns the wei-scaled balance for the address.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	acc, err := e.account(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.BalanceGiro), nil
}

// TotalSupply returns the current minted supply.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	supply, err := e.state.TokenTotalSupply()
	if err != nil {
		return nil, err
	}
	if supply == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(supply), nil
}

// Allowance returns the remaining (owner → spender) allowance.
func (e *Engine) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	allowance, err := e.state.TokenAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowance), nil
}

// RewardPoolBalance reports the owner balance, which doubles as the mint
// source for every claim.
func (e *Engine) RewardPoolBalance() (*big.Int, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	owner, err := e.state.TokenOwner()
	if err != nil {
		return nil, err
	}
	return e.BalanceOf(owner)
}

// Paused reports whether token movement is currently frozen.
func (e *Engine) Paused() (bool, error) {
	if err := e.requireState(); err != nil {
		return false, err
	}
	return e.state.TokenPaused()
}

// Owner returns the pool-holding owner address.
func (e *Engine) Owner() ([20]byte, error) {
	if err := e.requireState(); err != nil {
		return [20]byte{}, err
	}
	return e.state.TokenOwner()
}
