package service

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrProtocolViolation = errors.New("payment network protocol violation")
	ErrPaymentRequired   = errors.New("payment required")
	ErrNoPendingPurchase = errors.New("no pending purchase")
)
