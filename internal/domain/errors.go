package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNoData            = errors.New("no data")
	ErrClientRejected    = errors.New("request rejected by venue")
	ErrRetriesExhausted  = errors.New("retries exhausted")
	ErrSigningFailed     = errors.New("signing failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
