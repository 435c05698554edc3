package membership

import "errors"

var (
	ErrInvalidHolder   = errors.New("membership: invalid holder")
	ErrInvalidOperator = errors.New("membership: invalid operator")
	ErrNotFound        = errors.New("membership: token not found")
	ErrBurntToken      = errors.New("membership: token burnt")
	ErrAlreadyBurnt    = errors.New("membership: token already burnt")
	ErrNotAuthorized   = errors.New("membership: not authorized")
)
