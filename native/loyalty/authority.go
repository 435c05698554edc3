package loyalty

import "math/big"

// TokenApprover answers token-level delegation checks. The membership
// registry is the canonical implementation.
type TokenApprover interface {
	IsApprovedOrOwner(addr [20]byte, tokenID *big.Int) bool
}

// StaticAuthority is the stock Authority wiring: a fixed program owner, an
// optional set of delegated admins, and token-level questions answered by the
// membership registry. Deployments with richer role systems implement
// Authority themselves instead.
type StaticAuthority struct {
	owner  [20]byte
	admins map[[20]byte]struct{}
	tokens TokenApprover
}

// NewStaticAuthority creates an authority recognizing owner as the privileged
// caller and tokens as the source of token-level delegation answers.
func NewStaticAuthority(owner [20]byte, tokens TokenApprover) *StaticAuthority {
	return &StaticAuthority{
		owner:  owner,
		admins: make(map[[20]byte]struct{}),
		tokens: tokens,
	}
}

// GrantAdmin marks addr as satisfying the admin predicate.
func (a *StaticAuthority) GrantAdmin(addr [20]byte) {
	if a == nil || addr == ([20]byte{}) {
		return
	}
	a.admins[addr] = struct{}{}
}

// RevokeAdmin removes addr from the admin set. The owner keeps its standing
// regardless.
func (a *StaticAuthority) RevokeAdmin(addr [20]byte) {
	if a == nil {
		return
	}
	delete(a.admins, addr)
}

// IsOwner implements the Authority interface.
func (a *StaticAuthority) IsOwner(addr [20]byte) bool {
	return a != nil && addr != ([20]byte{}) && addr == a.owner
}

// IsAdmin implements the Authority interface. The owner always satisfies the
// admin predicate.
func (a *StaticAuthority) IsAdmin(addr [20]byte) bool {
	if a == nil {
		return false
	}
	if a.IsOwner(addr) {
		return true
	}
	_, ok := a.admins[addr]
	return ok
}

// IsApprovedOrOwner implements the Authority interface by delegating to the
// wired token approver, denying when none is configured.
func (a *StaticAuthority) IsApprovedOrOwner(addr [20]byte, tokenID *big.Int) bool {
	if a == nil || a.tokens == nil {
		return false
	}
	return a.tokens.IsApprovedOrOwner(addr, tokenID)
}
