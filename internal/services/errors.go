package services

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrRoundInProgress     = errors.New("round in progress")
	ErrNoActiveRound       = errors.New("no active round")
	ErrAlreadyRevealed     = errors.New("cell already revealed")
	ErrInvalidCell         = errors.New("invalid cell")
	ErrBettingClosed       = errors.New("betting closed")
	ErrDuplicateBet        = errors.New("duplicate bet")
	ErrNoActiveBet         = errors.New("no active bet")
	ErrAlreadyCashedOut    = errors.New("bet already cashed out")
	ErrUserNotFound        = errors.New("user not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
