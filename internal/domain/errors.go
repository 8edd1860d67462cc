package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrDecode          = errors.New("decode failure")
	ErrEncode          = errors.New("encode failure")
	ErrProcessing      = errors.New("processing failure")
	ErrValidation      = errors.New("validation failure")
	ErrProviderFailure = errors.New("provider failure")
	ErrPaymentRequired = errors.New("payment required")
	ErrUnavailable     = errors.New("unavailable")
)
