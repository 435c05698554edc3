package loyalty

import "errors"

var (
	ErrNotAuthorized       = errors.New("loyalty: not authorized")
	ErrNotFound            = errors.New("loyalty: token not found")
	ErrBurntToken          = errors.New("loyalty: token burnt")
	ErrAlreadyBurnt        = errors.New("loyalty: token already burnt")
	ErrNotTransferable     = errors.New("loyalty: transfers disabled")
	ErrTokenExpired        = errors.New("loyalty: token expired")
	ErrInsufficientBalance = errors.New("loyalty: insufficient balance")
	ErrInvalidHolder       = errors.New("loyalty: invalid holder")
	ErrInvalidReceiver     = errors.New("loyalty: invalid receiver")
	ErrInvalidAmount       = errors.New("loyalty: invalid amount")
)
