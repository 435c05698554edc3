package loyalty

import (
	"errors"
	"math/big"
	"time"

	"perkledger/core/events"
	"perkledger/core/types"
)

var (
	errNilState     = errors.New("loyalty engine: state not configured")
	errNilRegistry  = errors.New("loyalty engine: registry not configured")
	errNilAuthority = errors.New("loyalty engine: authority not configured")
)

// LedgerState describes the minimal functionality the points engine needs
// from the surrounding state implementation. Implementations return fresh
// copies; the engine never mutates a returned value in place.
type LedgerState interface {
	LoyaltyGlobalConfig() (*GlobalConfig, error)
	SetLoyaltyGlobalConfig(cfg *GlobalConfig) error
	LoyaltyBalance(addr [20]byte, tokenID *big.Int) (*big.Int, error)
	SetLoyaltyBalance(addr [20]byte, tokenID *big.Int, amount *big.Int) error
}

// TokenRegistry is the slice of the membership registry the engine drives.
// The registry stays the single source of truth for token identity; the
// engine never records token metadata of its own.
type TokenRegistry interface {
	Issue(holder [20]byte, expiresAt int64) (*big.Int, error)
	Revoke(id *big.Int, caller [20]byte) error
	Token(id *big.Int) (*types.Token, bool, error)
	HolderOf(id *big.Int) ([20]byte, error)
	ExpiryOf(id *big.Int) (int64, error)
	IsBurnt(id *big.Int) (bool, error)
}

// Authority answers the capability questions the engine delegates outward:
// program-level ownership, the admin predicate gating mint and credit, and
// token-level delegation for burns. Minimal deployments alias IsAdmin to
// IsOwner and back IsApprovedOrOwner with the membership registry; richer
// role systems substitute their own implementation without touching engine
// logic.
type Authority interface {
	IsOwner(addr [20]byte) bool
	IsAdmin(addr [20]byte) bool
	IsApprovedOrOwner(addr [20]byte, tokenID *big.Int) bool
}

// Engine enforces the point-balance and lifecycle rules of the loyalty
// ledger. Every mutating operation validates its preconditions in a fixed
// order, applies all writes, then emits exactly one event; the first failed
// check rejects the operation with nothing written.
type Engine struct {
	state    LedgerState
	registry TokenRegistry
	auth     Authority
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine creates a points engine with a no-op emitter. Callers wire state,
// registry and authority via the setters before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state LedgerState) { e.state = state }

// SetRegistry configures the membership registry the engine orchestrates.
func (e *Engine) SetRegistry(registry TokenRegistry) { e.registry = registry }

// SetAuthority configures the ownership/approval oracle.
func (e *Engine) SetAuthority(auth Authority) { e.auth = auth }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if e.auth == nil {
		return errNilAuthority
	}
	return nil
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) config() (*GlobalConfig, error) {
	cfg, err := e.state.LoyaltyGlobalConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &GlobalConfig{}
	}
	return cfg.Clone().Normalize(), nil
}

func (e *Engine) balance(addr [20]byte, tokenID *big.Int) (*big.Int, error) {
	balance, err := e.state.LoyaltyBalance(addr, tokenID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func normalizeAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(amount), nil
}

// Mint issues a fresh membership token to user, with the expiry computed from
// the configured membership lifetime. Only the program owner or an admin may
// mint. The new token's point balance starts at zero.
func (e *Engine) Mint(caller, user [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.auth.IsOwner(caller) && !e.auth.IsAdmin(caller) {
		return nil, ErrNotAuthorized
	}
	if user == ([20]byte{}) {
		return nil, ErrInvalidHolder
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	expiresAt := e.now() + int64(cfg.ExpirationPeriodSeconds)
	id, err := e.registry.Issue(user, expiresAt)
	if err != nil {
		return nil, err
	}
	e.emit(newTokenMintedEvent(user, id))
	return id, nil
}

// Burn revokes the token. Burning is not idempotent: a second burn reports
// ErrAlreadyBurnt. Point balances under the identifier are left in place; the
// burnt gate on transfer and redeem makes them unreachable.
func (e *Engine) Burn(caller [20]byte, tokenID *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	token, ok, err := e.registry.Token(tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if token.Status == types.TokenBurnt {
		return ErrAlreadyBurnt
	}
	if !e.auth.IsApprovedOrOwner(caller, tokenID) {
		return ErrNotAuthorized
	}
	if err := e.registry.Revoke(tokenID, caller); err != nil {
		return err
	}
	e.emit(newTokenBurnedEvent(token, caller))
	return nil
}

// SetTransferability flips the global transfer switch. Owner only; even
// admins cannot reach it. No event accompanies the change; observers poll
// Transferability instead.
func (e *Engine) SetTransferability(caller [20]byte, enabled bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.auth.IsOwner(caller) {
		return ErrNotAuthorized
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	cfg.Transferable = enabled
	return e.state.SetLoyaltyGlobalConfig(cfg)
}

// TransferPoints moves amount points under tokenID from the caller to
// receiver to. The checks run in a fixed order so simultaneous violations
// fail deterministically: burnt, transferability, holder, receiver, balance.
// A zero amount is a legal no-op that still emits. Expiry never gates a
// transfer.
func (e *Engine) TransferPoints(caller, to [20]byte, tokenID, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	amt, err := normalizeAmount(amount)
	if err != nil {
		return err
	}
	burnt, err := e.registry.IsBurnt(tokenID)
	if err != nil {
		return err
	}
	if burnt {
		return ErrBurntToken
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if !cfg.Transferable {
		return ErrNotTransferable
	}
	token, ok, err := e.registry.Token(tokenID)
	if err != nil {
		return err
	}
	if !ok || token.Holder != caller {
		return ErrNotAuthorized
	}
	if to == ([20]byte{}) {
		return ErrInvalidReceiver
	}
	senderBalance, err := e.balance(caller, tokenID)
	if err != nil {
		return err
	}
	if senderBalance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	if amt.Sign() > 0 && to != caller {
		receiverBalance, err := e.balance(to, tokenID)
		if err != nil {
			return err
		}
		debited := new(big.Int).Sub(senderBalance, amt)
		credited := new(big.Int).Add(receiverBalance, amt)
		if err := e.state.SetLoyaltyBalance(caller, tokenID, debited); err != nil {
			return err
		}
		if err := e.state.SetLoyaltyBalance(to, tokenID, credited); err != nil {
			return err
		}
	}
	e.emit(newPointsTransferredEvent(caller, to, token.ID, amt))
	return nil
}

// RedeemPoints destroys amount points held by the caller under tokenID in
// exchange for an off-ledger benefit. Redemption is the only operation gated
// by expiry; never-issued identifiers read a zero expiry and are therefore
// rejected as expired before any holder lookup.
func (e *Engine) RedeemPoints(caller [20]byte, tokenID, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	amt, err := normalizeAmount(amount)
	if err != nil {
		return err
	}
	burnt, err := e.registry.IsBurnt(tokenID)
	if err != nil {
		return err
	}
	if burnt {
		return ErrBurntToken
	}
	expiresAt, err := e.registry.ExpiryOf(tokenID)
	if err != nil {
		return err
	}
	if e.now() > expiresAt {
		return ErrTokenExpired
	}
	token, ok, err := e.registry.Token(tokenID)
	if err != nil {
		return err
	}
	if !ok || token.Holder != caller {
		return ErrNotAuthorized
	}
	balance, err := e.balance(caller, tokenID)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	if amt.Sign() > 0 {
		if err := e.state.SetLoyaltyBalance(caller, tokenID, new(big.Int).Sub(balance, amt)); err != nil {
			return err
		}
	}
	e.emit(newPointsRedeemedEvent(caller, token.ID, amt))
	return nil
}

// CreditPoints grants amount points to user under tokenID. Only the program
// owner or an admin may credit; together with genesis allocations this is the
// only way new points enter the system. Expired tokens may still be credited
// since expiry gates redemption only.
func (e *Engine) CreditPoints(caller, user [20]byte, tokenID, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	amt, err := normalizeAmount(amount)
	if err != nil {
		return err
	}
	token, ok, err := e.registry.Token(tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if token.Status == types.TokenBurnt {
		return ErrBurntToken
	}
	if !e.auth.IsOwner(caller) && !e.auth.IsAdmin(caller) {
		return ErrNotAuthorized
	}
	if user == ([20]byte{}) {
		return ErrInvalidReceiver
	}
	if amt.Sign() > 0 {
		balance, err := e.balance(user, tokenID)
		if err != nil {
			return err
		}
		if err := e.state.SetLoyaltyBalance(user, tokenID, new(big.Int).Add(balance, amt)); err != nil {
			return err
		}
	}
	e.emit(newPointsCreditedEvent(caller, user, token.ID, amt))
	return nil
}

// BalanceOf reports the points held by user under tokenID. Unknown pairs
// read zero.
func (e *Engine) BalanceOf(user [20]byte, tokenID *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if tokenID == nil {
		return big.NewInt(0), nil
	}
	return e.balance(user, tokenID)
}

// Transferability reports whether point transfers are currently enabled.
func (e *Engine) Transferability() (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	cfg, err := e.config()
	if err != nil {
		return false, err
	}
	return cfg.Transferable, nil
}

// IsBurnt reports whether the token is burnt. Total: identifier 0 and all
// revoked tokens answer true, never-issued identifiers false.
func (e *Engine) IsBurnt(tokenID *big.Int) (bool, error) {
	if e == nil || e.registry == nil {
		return false, errNilRegistry
	}
	return e.registry.IsBurnt(tokenID)
}

// IsExpired reports the time-derived redemption gate, strictly
// now > expiresAt. Never-issued identifiers read a zero expiry and answer
// true.
func (e *Engine) IsExpired(tokenID *big.Int) (bool, error) {
	if e == nil || e.registry == nil {
		return false, errNilRegistry
	}
	expiresAt, err := e.registry.ExpiryOf(tokenID)
	if err != nil {
		return false, err
	}
	return e.now() > expiresAt, nil
}

// ExpiryOf returns the expiry timestamp recorded at issuance; zero for
// never-issued identifiers.
func (e *Engine) ExpiryOf(tokenID *big.Int) (int64, error) {
	if e == nil || e.registry == nil {
		return 0, errNilRegistry
	}
	return e.registry.ExpiryOf(tokenID)
}

// HolderOf returns the current holder of an active token, delegating the
// not-found and burnt distinctions to the registry.
func (e *Engine) HolderOf(tokenID *big.Int) ([20]byte, error) {
	if e == nil || e.registry == nil {
		return [20]byte{}, errNilRegistry
	}
	return e.registry.HolderOf(tokenID)
}
