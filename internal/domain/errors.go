package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrStaleStatus       = errors.New("market status changed concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTxReverted        = errors.New("transaction reverted")
	ErrRunInProgress     = errors.New("pipeline run already in progress")
)
