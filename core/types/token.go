package types

import "math/big"

// TokenStatus tracks the lifecycle of a membership token. Tokens are issued
// active and can only ever move to burnt; there is no resurrection path.
type TokenStatus uint8

const (
	TokenActive TokenStatus = iota
	TokenBurnt
)

func (s TokenStatus) Valid() bool {
	switch s {
	case TokenActive, TokenBurnt:
		return true
	default:
		return false
	}
}

func (s TokenStatus) String() string {
	switch s {
	case TokenActive:
		return "active"
	case TokenBurnt:
		return "burnt"
	default:
		return "unknown"
	}
}

// Token is the registry record for a single membership token. ID and
// ExpiresAt are assigned at issuance and never change afterwards; Status is
// the only mutable field and only flips from active to burnt. The holder is
// retained after a burn so audit queries keep working.
type Token struct {
	ID        *big.Int
	Holder    [20]byte
	ExpiresAt int64
	Status    TokenStatus
}

// Clone returns a deep copy so callers can mutate the result freely.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ID != nil {
		clone.ID = new(big.Int).Set(t.ID)
	}
	return &clone
}
