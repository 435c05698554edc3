package membership

import (
	"errors"
	"math/big"

	"perkledger/core/types"
)

var errNilState = errors.New("membership registry: state not configured")

type registryState interface {
	TokenGet(id *big.Int) (*types.Token, bool, error)
	TokenPut(token *types.Token) error
	TokenCount() (*big.Int, error)
	SetTokenCount(count *big.Int) error
	TokenApprovalGet(id *big.Int) ([20]byte, bool, error)
	TokenApprovalPut(id *big.Int, spender [20]byte) error
	TokenApprovalClear(id *big.Int) error
	OperatorGet(holder, operator [20]byte) (bool, error)
	OperatorPut(holder, operator [20]byte, approved bool) error
}

// Registry owns membership token identity: sequential identifiers, holder
// association, burnt flags and immutable expiry timestamps, plus the
// holder-delegated approvals consulted when a token is revoked. It never
// touches point balances; that is the ledger engine's territory.
type Registry struct {
	state registryState
}

// NewRegistry creates a registry without a state backend. Callers must wire
// one via SetState before invoking any operation.
func NewRegistry() *Registry { return &Registry{} }

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// Initialize writes the identifier-0 tombstone: token 0 exists from the very
// beginning, carries no holder and is permanently burnt, so the first real
// issuance always receives identifier 1. Calling Initialize on an already
// initialized registry is a no-op.
func (r *Registry) Initialize() error {
	if r.state == nil {
		return errNilState
	}
	zero := big.NewInt(0)
	if _, ok, err := r.state.TokenGet(zero); err != nil {
		return err
	} else if ok {
		return nil
	}
	return r.state.TokenPut(&types.Token{ID: zero, ExpiresAt: 0, Status: types.TokenBurnt})
}

// Issue allocates the next sequential identifier and records the new token.
// Identifiers are never reused, including those of burnt tokens. The expiry
// timestamp is stored verbatim and can never be changed afterwards.
func (r *Registry) Issue(holder [20]byte, expiresAt int64) (*big.Int, error) {
	if r.state == nil {
		return nil, errNilState
	}
	if holder == ([20]byte{}) {
		return nil, ErrInvalidHolder
	}
	count, err := r.state.TokenCount()
	if err != nil {
		return nil, err
	}
	id := new(big.Int).Add(count, big.NewInt(1))
	token := &types.Token{ID: id, Holder: holder, ExpiresAt: expiresAt, Status: types.TokenActive}
	if err := r.state.TokenPut(token); err != nil {
		return nil, err
	}
	if err := r.state.SetTokenCount(id); err != nil {
		return nil, err
	}
	return new(big.Int).Set(id), nil
}

// Revoke marks the token burnt. The caller must be the holder, the per-token
// approvee or an operator for the holder. Burnt is terminal: revoking an
// already burnt token fails rather than succeeding idempotently. Holder and
// expiry stay readable after the burn for audit purposes.
func (r *Registry) Revoke(id *big.Int, caller [20]byte) error {
	token, ok, err := r.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if token.Status == types.TokenBurnt {
		return ErrAlreadyBurnt
	}
	authorized, err := r.approvedOrOwner(caller, token)
	if err != nil {
		return err
	}
	if !authorized {
		return ErrNotAuthorized
	}
	if err := r.state.TokenApprovalClear(token.ID); err != nil {
		return err
	}
	token.Status = types.TokenBurnt
	return r.state.TokenPut(token)
}

// HolderOf returns the current holder of an active token. Never-issued
// identifiers report ErrNotFound and burnt tokens ErrBurntToken; the full
// record stays reachable through Token for audit reads.
func (r *Registry) HolderOf(id *big.Int) ([20]byte, error) {
	token, ok, err := r.get(id)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrNotFound
	}
	if token.Status == types.TokenBurnt {
		return [20]byte{}, ErrBurntToken
	}
	return token.Holder, nil
}

// IsBurnt reports whether the token is burnt. It is total: identifier 0 and
// every revoked token answer true, never-issued identifiers answer false.
func (r *Registry) IsBurnt(id *big.Int) (bool, error) {
	token, ok, err := r.get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return token.Status == types.TokenBurnt, nil
}

// ExpiryOf returns the expiry timestamp recorded at issuance. It is total:
// burnt tokens keep their value and never-issued identifiers read zero,
// mirroring an absent record.
func (r *Registry) ExpiryOf(id *big.Int) (int64, error) {
	token, ok, err := r.get(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return token.ExpiresAt, nil
}

// Token returns a copy of the full registry record together with an existence
// flag, letting callers distinguish never-issued identifiers from burnt ones
// in a single read.
func (r *Registry) Token(id *big.Int) (*types.Token, bool, error) {
	token, ok, err := r.get(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return token.Clone(), true, nil
}

// Approve grants or, with a zero spender, clears the single per-token
// approval. Only the holder or one of the holder's operators may manage it,
// and burnt tokens can no longer be approved.
func (r *Registry) Approve(caller, spender [20]byte, id *big.Int) error {
	token, ok, err := r.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if token.Status == types.TokenBurnt {
		return ErrAlreadyBurnt
	}
	if caller != token.Holder {
		operator, err := r.state.OperatorGet(token.Holder, caller)
		if err != nil {
			return err
		}
		if !operator {
			return ErrNotAuthorized
		}
	}
	if spender == ([20]byte{}) {
		return r.state.TokenApprovalClear(token.ID)
	}
	return r.state.TokenApprovalPut(token.ID, spender)
}

// SetApprovalForAll grants or revokes operator rights over every token the
// holder owns, current and future.
func (r *Registry) SetApprovalForAll(holder, operator [20]byte, approved bool) error {
	if r.state == nil {
		return errNilState
	}
	if operator == ([20]byte{}) {
		return ErrInvalidOperator
	}
	return r.state.OperatorPut(holder, operator, approved)
}

// ApprovedFor returns the per-token approvee, if any.
func (r *Registry) ApprovedFor(id *big.Int) ([20]byte, bool, error) {
	if r.state == nil {
		return [20]byte{}, false, errNilState
	}
	if id == nil || id.Sign() < 0 {
		return [20]byte{}, false, nil
	}
	return r.state.TokenApprovalGet(id)
}

// IsOperator reports whether operator may act on every token held by holder.
func (r *Registry) IsOperator(holder, operator [20]byte) (bool, error) {
	if r.state == nil {
		return false, errNilState
	}
	return r.state.OperatorGet(holder, operator)
}

// IsApprovedOrOwner reports whether addr is the holder, the per-token
// approvee or one of the holder's operators. It answers false on any state
// failure.
func (r *Registry) IsApprovedOrOwner(addr [20]byte, id *big.Int) bool {
	token, ok, err := r.get(id)
	if err != nil || !ok {
		return false
	}
	authorized, err := r.approvedOrOwner(addr, token)
	return err == nil && authorized
}

func (r *Registry) approvedOrOwner(caller [20]byte, token *types.Token) (bool, error) {
	if caller == token.Holder && caller != ([20]byte{}) {
		return true, nil
	}
	spender, ok, err := r.state.TokenApprovalGet(token.ID)
	if err != nil {
		return false, err
	}
	if ok && spender == caller {
		return true, nil
	}
	return r.state.OperatorGet(token.Holder, caller)
}

func (r *Registry) get(id *big.Int) (*types.Token, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	if id == nil || id.Sign() < 0 {
		return nil, false, nil
	}
	return r.state.TokenGet(id)
}
