package token

import "errors"

var (
	ErrPaused                = errors.New("token: paused")
	ErrAlreadyPaused         = errors.New("token: already paused")
	ErrNotPaused             = errors.New("token: not paused")
	ErrUnauthorized          = errors.New("token: unauthorized")
	ErrAlreadyClaimed        = errors.New("token: reward already claimed")
	ErrInsufficientPool      = errors.New("token: insufficient reward pool")
	ErrUnknownRewardKind     = errors.New("token: unknown reward kind")
	ErrExceedsMaxSupply      = errors.New("token: exceeds max supply")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: amount must be positive")
)
