package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")

	ErrInvalidCredential   = errors.New("invalid private key or mnemonic phrase format")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrPhase               = errors.New("bonding curve is finalized")
	ErrInvalidSlippage     = errors.New("slippage must be between 0 and 5000 bps")
	ErrPrecision           = errors.New("malformed or negative decimal amount")
	ErrInsufficientInput   = errors.New("amount below curve minimum")
	ErrRPCFailure          = errors.New("rpc failure")
	ErrTransactionReverted = errors.New("transaction reverted")
)
