package loyalty

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"perkledger/core/events"
	"perkledger/core/types"
	"perkledger/native/membership"
)

const testNow = int64(1_700_000_000)

type mockState struct {
	tokens    map[string]*types.Token
	count     *big.Int
	approvals map[string][20]byte
	operators map[string]bool
	cfg       *GlobalConfig
	balances  map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		tokens:    make(map[string]*types.Token),
		count:     big.NewInt(0),
		approvals: make(map[string][20]byte),
		operators: make(map[string]bool),
		cfg:       &GlobalConfig{Transferable: false, ExpirationPeriodSeconds: 3600},
		balances:  make(map[string]*big.Int),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func balanceKey(addr [20]byte, id *big.Int) string {
	return string(addr[:]) + "/" + id.String()
}

func (m *mockState) TokenGet(id *big.Int) (*types.Token, bool, error) {
	token, ok := m.tokens[id.String()]
	if !ok {
		return nil, false, nil
	}
	return token.Clone(), true, nil
}

func (m *mockState) TokenPut(token *types.Token) error {
	m.tokens[token.ID.String()] = token.Clone()
	return nil
}

func (m *mockState) TokenCount() (*big.Int, error) {
	return new(big.Int).Set(m.count), nil
}

func (m *mockState) SetTokenCount(count *big.Int) error {
	m.count = new(big.Int).Set(count)
	return nil
}

func (m *mockState) TokenApprovalGet(id *big.Int) ([20]byte, bool, error) {
	spender, ok := m.approvals[id.String()]
	return spender, ok, nil
}

func (m *mockState) TokenApprovalPut(id *big.Int, spender [20]byte) error {
	m.approvals[id.String()] = spender
	return nil
}

func (m *mockState) TokenApprovalClear(id *big.Int) error {
	delete(m.approvals, id.String())
	return nil
}

func (m *mockState) OperatorGet(holder, operator [20]byte) (bool, error) {
	return m.operators[string(holder[:])+string(operator[:])], nil
}

func (m *mockState) OperatorPut(holder, operator [20]byte, approved bool) error {
	m.operators[string(holder[:])+string(operator[:])] = approved
	return nil
}

func (m *mockState) LoyaltyGlobalConfig() (*GlobalConfig, error) {
	return m.cfg.Clone(), nil
}

func (m *mockState) SetLoyaltyGlobalConfig(cfg *GlobalConfig) error {
	m.cfg = cfg.Clone()
	return nil
}

func (m *mockState) LoyaltyBalance(addr [20]byte, tokenID *big.Int) (*big.Int, error) {
	if balance, ok := m.balances[balanceKey(addr, tokenID)]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetLoyaltyBalance(addr [20]byte, tokenID *big.Int, amount *big.Int) error {
	m.balances[balanceKey(addr, tokenID)] = new(big.Int).Set(amount)
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) eventTypes() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType())
	}
	return out
}

var (
	owner    = newTestAddress(0xA0)
	admin    = newTestAddress(0xA1)
	alice    = newTestAddress(0x01)
	bob      = newTestAddress(0x02)
	stranger = newTestAddress(0xFF)
)

type testLedger struct {
	engine   *Engine
	registry *membership.Registry
	state    *mockState
	emitter  *capturingEmitter
	auth     *StaticAuthority
	now      int64
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	state := newMockState()
	registry := membership.NewRegistry()
	registry.SetState(state)
	if err := registry.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	auth := NewStaticAuthority(owner, registry)
	auth.GrantAdmin(admin)
	emitter := &capturingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetRegistry(registry)
	engine.SetAuthority(auth)
	engine.SetEmitter(emitter)
	ledger := &testLedger{engine: engine, registry: registry, state: state, emitter: emitter, auth: auth, now: testNow}
	engine.SetNowFunc(func() int64 { return ledger.now })
	return ledger
}

func (l *testLedger) mint(t *testing.T, user [20]byte) *big.Int {
	t.Helper()
	id, err := l.engine.Mint(owner, user)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return id
}

func (l *testLedger) credit(t *testing.T, user [20]byte, id *big.Int, amount int64) {
	t.Helper()
	if err := l.engine.CreditPoints(owner, user, id, big.NewInt(amount)); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (l *testLedger) enableTransfers(t *testing.T) {
	t.Helper()
	if err := l.engine.SetTransferability(owner, true); err != nil {
		t.Fatalf("enable transfers: %v", err)
	}
}

func (l *testLedger) balanceOf(t *testing.T, user [20]byte, id *big.Int) int64 {
	t.Helper()
	balance, err := l.engine.BalanceOf(user, id)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	return balance.Int64()
}

func TestMintAssignsSequentialIdentifiers(t *testing.T) {
	ledger := newTestLedger(t)

	first := ledger.mint(t, alice)
	second := ledger.mint(t, bob)
	if first.Cmp(big.NewInt(1)) != 0 || second.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected identifiers 1 and 2, got %s and %s", first, second)
	}

	expiry, err := ledger.engine.ExpiryOf(first)
	if err != nil {
		t.Fatalf("expiry of: %v", err)
	}
	if expiry != testNow+3600 {
		t.Fatalf("expected expiry %d, got %d", testNow+3600, expiry)
	}
	expired, err := ledger.engine.IsExpired(first)
	if err != nil {
		t.Fatalf("is expired: %v", err)
	}
	if expired {
		t.Fatalf("fresh token must not be expired")
	}
	if got := ledger.balanceOf(t, alice, first); got != 0 {
		t.Fatalf("expected zero opening balance, got %d", got)
	}

	if len(ledger.emitter.events) != 2 {
		t.Fatalf("expected two events, got %v", ledger.emitter.eventTypes())
	}
	minted, ok := ledger.emitter.events[0].(events.TokenMinted)
	if !ok {
		t.Fatalf("expected TokenMinted, got %T", ledger.emitter.events[0])
	}
	if minted.Holder != alice || minted.TokenID.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("unexpected mint event payload: %+v", minted)
	}
}

func TestMintAuthorization(t *testing.T) {
	ledger := newTestLedger(t)

	if _, err := ledger.engine.Mint(stranger, alice); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := ledger.engine.Mint(admin, alice); err != nil {
		t.Fatalf("admin mint: %v", err)
	}
	if _, err := ledger.engine.Mint(owner, [20]byte{}); !errors.Is(err, ErrInvalidHolder) {
		t.Fatalf("expected ErrInvalidHolder, got %v", err)
	}
	// The caller check fires before holder validation.
	if _, err := ledger.engine.Mint(stranger, [20]byte{}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestTransferLifecycle(t *testing.T) {
	ledger := newTestLedger(t)
	id := ledger.mint(t, alice)
	ledger.credit(t, alice, id, 100)

	if err := ledger.engine.TransferPoints(alice, bob, id, big.NewInt(30)); !errors.Is(err, ErrNotTransferable) {
		t.Fatalf("expected ErrNotTransferable, got %v", err)
	}
	if got := ledger.balanceOf(t, alice, id); got != 100 {
		t.Fatalf("failed transfer must not move points, alice holds %d", got)
	}

	ledger.enableTransfers(t)
	if err := ledger.engine.TransferPoints(alice, bob, id, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := ledger.balanceOf(t, alice, id); got != 70 {
		t.Fatalf("expected sender balance 70, got %d", got)
	}
	if got := ledger.balanceOf(t, bob, id); got != 30 {
		t.Fatalf("expected receiver balance 30, got %d", got)
	}

	last := ledger.emitter.events[len(ledger.emitter.events)-1]
	transferred, ok := last.(events.LoyaltyPointsTransferred)
	if !ok {
		t.Fatalf("expected LoyaltyPointsTransferred, got %T", last)
	}
	if transferred.From != alice || transferred.To != bob || transferred.Amount.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected transfer event payload: %+v", transferred)
	}
}

func TestTransferZeroAmount(t *testing.T) {
	ledger := newTestLedger(t)
	id := ledger.mint(t, alice)
	ledger.enableTransfers(t)

	before := len(ledger.emitter.events)
	if err := ledger.engine.TransferPoints(alice, bob, id, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if got := ledger.balanceOf(t, alice, id); got != 0 {
		t.Fatalf("expected untouched balance, got %d", got)
	}
	if len(ledger.emitter.events) != before+1 {
		t.Fatalf("zero transfer must still emit an event")
	}
	transferred, ok := ledger.emitter.events[before].(events.LoyaltyPointsTransferred)
	if !ok || transferred.Amount.Sign() != 0 {
		t.Fatalf("expected zero-amount transfer event, got %+v", ledger.emitter.events[before])
	}
}

func TestTransferCheckOrder(t *testing.T) {
	t.Run("burnt precedes transferability", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.Burn(alice, id); err != nil {
			t.Fatalf("burn: %v", err)
		}
		// Transfers are still disabled; the burnt gate must answer first.
		if err := ledger.engine.TransferPoints(alice, bob, id, big.NewInt(1)); !errors.Is(err, ErrBurntToken) {
			t.Fatalf("expected ErrBurntToken, got %v", err)
		}
	})

	t.Run("transferability precedes holder", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.TransferPoints(stranger, bob, id, big.NewInt(1)); !errors.Is(err, ErrNotTransferable) {
			t.Fatalf("expected ErrNotTransferable, got %v", err)
		}
	})

	t.Run("holder precedes receiver", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		ledger.enableTransfers(t)
		if err := ledger.engine.TransferPoints(stranger, [20]byte{}, id, big.NewInt(1)); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("receiver precedes balance", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		ledger.enableTransfers(t)
		if err := ledger.engine.TransferPoints(alice, [20]byte{}, id, big.NewInt(1)); !errors.Is(err, ErrInvalidReceiver) {
			t.Fatalf("expected ErrInvalidReceiver, got %v", err)
		}
	})

	t.Run("insufficient balance", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		ledger.enableTransfers(t)
		ledger.credit(t, alice, id, 10)
		if err := ledger.engine.TransferPoints(alice, bob, id, big.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
		if got := ledger.balanceOf(t, bob, id); got != 0 {
			t.Fatalf("failed transfer must not credit the receiver, got %d", got)
		}
	})

	t.Run("never issued fails the holder gate", func(t *testing.T) {
		ledger := newTestLedger(t)
		ledger.enableTransfers(t)
		if err := ledger.engine.TransferPoints(alice, bob, big.NewInt(7), big.NewInt(0)); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("negative amount", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		ledger.enableTransfers(t)
		if err := ledger.engine.TransferPoints(alice, bob, id, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func TestTransferToSelf(t *testing.T) {
	ledger := newTestLedger(t)
	id := ledger.mint(t, alice)
	ledger.enableTransfers(t)
	ledger.credit(t, alice, id, 40)

	if err := ledger.engine.TransferPoints(alice, alice, id, big.NewInt(25)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if got := ledger.balanceOf(t, alice, id); got != 40 {
		t.Fatalf("self transfer must conserve the balance, got %d", got)
	}
	last := ledger.emitter.events[len(ledger.emitter.events)-1]
	if _, ok := last.(events.LoyaltyPointsTransferred); !ok {
		t.Fatalf("expected transfer event, got %T", last)
	}
}

func TestTransferIgnoresExpiry(t *testing.T) {
	ledger := newTestLedger(t)
	id := ledger.mint(t, alice)
	ledger.enableTransfers(t)
	ledger.credit(t, alice, id, 50)

	ledger.now = testNow + 4000 // past expiresAt
	if err := ledger.engine.TransferPoints(alice, bob, id, big.NewInt(20)); err != nil {
		t.Fatalf("transfer on expired token: %v", err)
	}
	if got := ledger.balanceOf(t, bob, id); got != 20 {
		t.Fatalf("expected receiver balance 20, got %d", got)
	}
}

func TestRedeemLifecycle(t *testing.T) {
	ledger := newTestLedger(t)
	id := ledger.mint(t, alice)
	ledger.credit(t, alice, id, 70)

	if err := ledger.engine.RedeemPoints(alice, id, big.NewInt(50)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := ledger.balanceOf(t, alice, id); got != 20 {
		t.Fatalf("expected balance 20 after redeem, got %d", got)
	}
	last := ledger.emitter.events[len(ledger.emitter.events)-1]
	redeemed, ok := last.(events.LoyaltyPointsRedeemed)
	if !ok {
		t.Fatalf("expected LoyaltyPointsRedeemed, got %T", last)
	}
	if redeemed.Holder != alice || redeemed.Amount.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected redeem event payload: %+v", redeemed)
	}

	if err := ledger.engine.RedeemPoints(alice, id, big.NewInt(50)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := ledger.balanceOf(t, alice, id); got != 20 {
		t.Fatalf("failed redeem must not burn points, got %d", got)
	}
}

func TestRedeemExpiry(t *testing.T) {
	ledger := newTestLedger(t)
	id := ledger.mint(t, alice)
	ledger.credit(t, alice, id, 100)

	// Expiry is a strict inequality: at exactly expiresAt the token is
	// still redeemable.
	ledger.now = testNow + 3600
	if err := ledger.engine.RedeemPoints(alice, id, big.NewInt(10)); err != nil {
		t.Fatalf("redeem at expiry boundary: %v", err)
	}

	ledger.now = testNow + 3601
	expired, err := ledger.engine.IsExpired(id)
	if err != nil {
		t.Fatalf("is expired: %v", err)
	}
	if !expired {
		t.Fatalf("expected token expired")
	}
	if err := ledger.engine.RedeemPoints(alice, id, big.NewInt(10)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if got := ledger.balanceOf(t, alice, id); got != 90 {
		t.Fatalf("failed redeem must not burn points, got %d", got)
	}
}

func TestRedeemCheckOrder(t *testing.T) {
	t.Run("burnt precedes expired", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.Burn(alice, id); err != nil {
			t.Fatalf("burn: %v", err)
		}
		ledger.now = testNow + 4000
		if err := ledger.engine.RedeemPoints(alice, id, big.NewInt(1)); !errors.Is(err, ErrBurntToken) {
			t.Fatalf("expected ErrBurntToken, got %v", err)
		}
	})

	t.Run("expired precedes holder", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		ledger.now = testNow + 4000
		if err := ledger.engine.RedeemPoints(stranger, id, big.NewInt(1)); !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("holder precedes balance", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.RedeemPoints(stranger, id, big.NewInt(1)); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("never issued reads a zero expiry", func(t *testing.T) {
		ledger := newTestLedger(t)
		if err := ledger.engine.RedeemPoints(alice, big.NewInt(7), big.NewInt(1)); !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
	})
}

func TestBurnLifecycle(t *testing.T) {
	ledger := newTestLedger(t)
	id := ledger.mint(t, alice)
	ledger.credit(t, alice, id, 20)

	if err := ledger.engine.Burn(alice, id); err != nil {
		t.Fatalf("burn: %v", err)
	}
	last := ledger.emitter.events[len(ledger.emitter.events)-1]
	burned, ok := last.(events.TokenBurned)
	if !ok {
		t.Fatalf("expected TokenBurned, got %T", last)
	}
	if burned.Caller != alice || burned.Holder != alice || burned.TokenID.Cmp(id) != 0 {
		t.Fatalf("unexpected burn event payload: %+v", burned)
	}

	if err := ledger.engine.Burn(alice, id); !errors.Is(err, ErrAlreadyBurnt) {
		t.Fatalf("expected ErrAlreadyBurnt, got %v", err)
	}
	ledger.enableTransfers(t)
	if err := ledger.engine.TransferPoints(alice, bob, id, big.NewInt(1)); !errors.Is(err, ErrBurntToken) {
		t.Fatalf("expected ErrBurntToken on transfer, got %v", err)
	}
	if err := ledger.engine.RedeemPoints(alice, id, big.NewInt(1)); !errors.Is(err, ErrBurntToken) {
		t.Fatalf("expected ErrBurntToken on redeem, got %v", err)
	}
	burnt, err := ledger.engine.IsBurnt(id)
	if err != nil {
		t.Fatalf("is burnt: %v", err)
	}
	if !burnt {
		t.Fatalf("expected burnt token")
	}
	// The stranded balance stays readable for audit purposes.
	if got := ledger.balanceOf(t, alice, id); got != 20 {
		t.Fatalf("expected stranded balance 20, got %d", got)
	}
}

func TestBurnAuthorization(t *testing.T) {
	t.Run("never issued", func(t *testing.T) {
		ledger := newTestLedger(t)
		if err := ledger.engine.Burn(alice, big.NewInt(9)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("stranger", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.Burn(stranger, id); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("approved delegate", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.registry.Approve(alice, bob, id); err != nil {
			t.Fatalf("approve: %v", err)
		}
		if err := ledger.engine.Burn(bob, id); err != nil {
			t.Fatalf("burn by delegate: %v", err)
		}
	})

	t.Run("operator", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.registry.SetApprovalForAll(alice, bob, true); err != nil {
			t.Fatalf("set approval for all: %v", err)
		}
		if err := ledger.engine.Burn(bob, id); err != nil {
			t.Fatalf("burn by operator: %v", err)
		}
	})
}

func TestSetTransferability(t *testing.T) {
	ledger := newTestLedger(t)

	enabled, err := ledger.engine.Transferability()
	if err != nil {
		t.Fatalf("transferability: %v", err)
	}
	if enabled {
		t.Fatalf("transfers must start disabled")
	}

	if err := ledger.engine.SetTransferability(stranger, true); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for stranger, got %v", err)
	}
	// The switch is owner-only; the admin predicate does not reach it.
	if err := ledger.engine.SetTransferability(admin, true); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for admin, got %v", err)
	}

	before := len(ledger.emitter.events)
	if err := ledger.engine.SetTransferability(owner, true); err != nil {
		t.Fatalf("set transferability: %v", err)
	}
	if len(ledger.emitter.events) != before {
		t.Fatalf("setTransferability must not emit an event, got %v", ledger.emitter.eventTypes())
	}
	enabled, err = ledger.engine.Transferability()
	if err != nil {
		t.Fatalf("transferability: %v", err)
	}
	if !enabled {
		t.Fatalf("expected transfers enabled")
	}
}

func TestCreditPoints(t *testing.T) {
	t.Run("owner and admin", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.CreditPoints(owner, alice, id, big.NewInt(100)); err != nil {
			t.Fatalf("owner credit: %v", err)
		}
		if err := ledger.engine.CreditPoints(admin, alice, id, big.NewInt(11)); err != nil {
			t.Fatalf("admin credit: %v", err)
		}
		if got := ledger.balanceOf(t, alice, id); got != 111 {
			t.Fatalf("expected balance 111, got %d", got)
		}
		last := ledger.emitter.events[len(ledger.emitter.events)-1]
		credited, ok := last.(events.LoyaltyPointsCredited)
		if !ok {
			t.Fatalf("expected LoyaltyPointsCredited, got %T", last)
		}
		if credited.Holder != alice || credited.Caller != admin {
			t.Fatalf("unexpected credit event payload: %+v", credited)
		}
	})

	t.Run("stranger", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.CreditPoints(stranger, alice, id, big.NewInt(1)); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("never issued", func(t *testing.T) {
		ledger := newTestLedger(t)
		if err := ledger.engine.CreditPoints(owner, alice, big.NewInt(5), big.NewInt(1)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("burnt precedes authorization", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.Burn(alice, id); err != nil {
			t.Fatalf("burn: %v", err)
		}
		if err := ledger.engine.CreditPoints(stranger, alice, id, big.NewInt(1)); !errors.Is(err, ErrBurntToken) {
			t.Fatalf("expected ErrBurntToken, got %v", err)
		}
	})

	t.Run("zero receiver", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		if err := ledger.engine.CreditPoints(owner, [20]byte{}, id, big.NewInt(1)); !errors.Is(err, ErrInvalidReceiver) {
			t.Fatalf("expected ErrInvalidReceiver, got %v", err)
		}
	})

	t.Run("expired token still creditable", func(t *testing.T) {
		ledger := newTestLedger(t)
		id := ledger.mint(t, alice)
		ledger.now = testNow + 4000
		if err := ledger.engine.CreditPoints(owner, alice, id, big.NewInt(10)); err != nil {
			t.Fatalf("credit on expired token: %v", err)
		}
	})
}

func TestBalancesScopedPerToken(t *testing.T) {
	ledger := newTestLedger(t)
	first := ledger.mint(t, alice)
	second := ledger.mint(t, alice)
	ledger.credit(t, alice, first, 10)
	ledger.credit(t, alice, second, 5)

	if err := ledger.engine.RedeemPoints(alice, first, big.NewInt(4)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := ledger.balanceOf(t, alice, first); got != 6 {
		t.Fatalf("expected 6 under the first token, got %d", got)
	}
	if got := ledger.balanceOf(t, alice, second); got != 5 {
		t.Fatalf("points must stay scoped to their token, got %d", got)
	}
}

func TestIdentifierZeroReserved(t *testing.T) {
	ledger := newTestLedger(t)

	burnt, err := ledger.engine.IsBurnt(big.NewInt(0))
	if err != nil {
		t.Fatalf("is burnt: %v", err)
	}
	if !burnt {
		t.Fatalf("identifier 0 must be burnt from initialization")
	}
	ledger.enableTransfers(t)
	if err := ledger.engine.TransferPoints(alice, bob, big.NewInt(0), big.NewInt(1)); !errors.Is(err, ErrBurntToken) {
		t.Fatalf("expected ErrBurntToken on identifier 0, got %v", err)
	}
	if id := ledger.mint(t, alice); id.Sign() <= 0 {
		t.Fatalf("mint must never return identifier 0, got %s", id)
	}
}

func TestQueriesOnEmptyState(t *testing.T) {
	ledger := newTestLedger(t)

	if got := ledger.balanceOf(t, alice, big.NewInt(42)); got != 0 {
		t.Fatalf("expected zero balance, got %d", got)
	}
	burnt, err := ledger.engine.IsBurnt(big.NewInt(42))
	if err != nil || burnt {
		t.Fatalf("never-issued identifier must not be burnt, burnt=%v err=%v", burnt, err)
	}
	expired, err := ledger.engine.IsExpired(big.NewInt(42))
	if err != nil {
		t.Fatalf("is expired: %v", err)
	}
	if !expired {
		t.Fatalf("never-issued identifiers read a zero expiry and report expired")
	}
	expiry, err := ledger.engine.ExpiryOf(big.NewInt(42))
	if err != nil || expiry != 0 {
		t.Fatalf("expected zero expiry, got %d err=%v", expiry, err)
	}
	if _, err := ledger.engine.HolderOf(big.NewInt(42)); !errors.Is(err, membership.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from holder lookup, got %v", err)
	}
}
