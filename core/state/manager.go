package state

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"perkledger/core/types"
	"perkledger/native/loyalty"
	"perkledger/storage"
)

// Manager mediates every read and write of ledger state. Records are RLP
// encoded under prefixed keys so unrelated record families cannot collide,
// and every numeric value is bounds-checked against the 256-bit range on its
// way in. It backs both the membership registry and the points engine.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var _ loyalty.LedgerState = (*Manager)(nil)

// storedToken is the on-disk shape of a membership token. RLP has no signed
// integers, so the expiry travels as uint64 and is range-checked on both
// sides of the conversion.
type storedToken struct {
	ID        *big.Int
	Holder    [20]byte
	ExpiresAt uint64
	Status    uint8
}

func (m *Manager) writeRecord(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

func (m *Manager) readRecord(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager unavailable")
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func canonicalTokenID(id *big.Int) (*uint256.Int, error) {
	if id == nil {
		return nil, fmt.Errorf("state: token id must not be nil")
	}
	if id.Sign() < 0 {
		return nil, fmt.Errorf("state: token id must not be negative")
	}
	canonical, overflow := uint256.FromBig(id)
	if overflow {
		return nil, fmt.Errorf("state: token id exceeds 256 bits")
	}
	return canonical, nil
}

// TokenGet loads the membership token stored under the provided identifier.
// The boolean return reports whether the record existed.
func (m *Manager) TokenGet(id *big.Int) (*types.Token, bool, error) {
	canonical, err := canonicalTokenID(id)
	if err != nil {
		return nil, false, err
	}
	var stored storedToken
	ok, err := m.readRecord(tokenKey(canonical), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if stored.ExpiresAt > math.MaxInt64 {
		return nil, false, fmt.Errorf("state: token %s: expiry overflow", id)
	}
	status := types.TokenStatus(stored.Status)
	if !status.Valid() {
		return nil, false, fmt.Errorf("state: token %s: unknown status %d", id, stored.Status)
	}
	token := &types.Token{
		Holder:    stored.Holder,
		ExpiresAt: int64(stored.ExpiresAt),
		Status:    status,
	}
	if stored.ID != nil {
		token.ID = new(big.Int).Set(stored.ID)
	} else {
		token.ID = new(big.Int).Set(id)
	}
	return token, true, nil
}

// TokenPut persists the membership token under its identifier.
func (m *Manager) TokenPut(token *types.Token) error {
	if token == nil {
		return fmt.Errorf("state: token must not be nil")
	}
	canonical, err := canonicalTokenID(token.ID)
	if err != nil {
		return err
	}
	if token.ExpiresAt < 0 {
		return fmt.Errorf("state: token %s: expiry must not be negative", token.ID)
	}
	if !token.Status.Valid() {
		return fmt.Errorf("state: token %s: unknown status %d", token.ID, uint8(token.Status))
	}
	stored := storedToken{
		ID:        new(big.Int).Set(token.ID),
		Holder:    token.Holder,
		ExpiresAt: uint64(token.ExpiresAt),
		Status:    uint8(token.Status),
	}
	return m.writeRecord(tokenKey(canonical), &stored)
}

// TokenCount returns the number of identifiers handed out so far. An empty
// state reads zero.
func (m *Manager) TokenCount() (*big.Int, error) {
	count := new(big.Int)
	ok, err := m.readRecord(tokenCounterKey(), count)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return count, nil
}

// SetTokenCount records the highest identifier handed out so far.
func (m *Manager) SetTokenCount(count *big.Int) error {
	if _, err := canonicalTokenID(count); err != nil {
		return err
	}
	return m.writeRecord(tokenCounterKey(), count)
}

// TokenApprovalGet returns the per-token approvee, if any.
func (m *Manager) TokenApprovalGet(id *big.Int) ([20]byte, bool, error) {
	canonical, err := canonicalTokenID(id)
	if err != nil {
		return [20]byte{}, false, err
	}
	var spender [20]byte
	ok, err := m.readRecord(approvalKey(canonical), &spender)
	if err != nil {
		return [20]byte{}, false, err
	}
	return spender, ok, nil
}

// TokenApprovalPut records spender as the per-token approvee.
func (m *Manager) TokenApprovalPut(id *big.Int, spender [20]byte) error {
	canonical, err := canonicalTokenID(id)
	if err != nil {
		return err
	}
	return m.writeRecord(approvalKey(canonical), spender)
}

// TokenApprovalClear removes the per-token approvee.
func (m *Manager) TokenApprovalClear(id *big.Int) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	canonical, err := canonicalTokenID(id)
	if err != nil {
		return err
	}
	return m.db.Delete(approvalKey(canonical))
}

// OperatorGet reports whether operator holds blanket rights over every token
// owned by holder.
func (m *Manager) OperatorGet(holder, operator [20]byte) (bool, error) {
	var approved bool
	ok, err := m.readRecord(operatorKey(holder, operator), &approved)
	if err != nil {
		return false, err
	}
	return ok && approved, nil
}

// OperatorPut records or, when approved is false, removes blanket operator
// rights.
func (m *Manager) OperatorPut(holder, operator [20]byte, approved bool) error {
	if !approved {
		if m == nil || m.db == nil {
			return fmt.Errorf("state: manager unavailable")
		}
		return m.db.Delete(operatorKey(holder, operator))
	}
	return m.writeRecord(operatorKey(holder, operator), true)
}

// LoyaltyGlobalConfig loads the program-wide ledger configuration. An empty
// state reads nil; callers apply their own defaults.
func (m *Manager) LoyaltyGlobalConfig() (*loyalty.GlobalConfig, error) {
	cfg := new(loyalty.GlobalConfig)
	ok, err := m.readRecord(loyaltyConfigKey(), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return cfg, nil
}

// SetLoyaltyGlobalConfig persists the program-wide ledger configuration.
func (m *Manager) SetLoyaltyGlobalConfig(cfg *loyalty.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: loyalty config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return m.writeRecord(loyaltyConfigKey(), cfg.Clone())
}

// LoyaltyBalance returns the points held by addr under the provided token
// identifier. Unknown pairs read zero.
func (m *Manager) LoyaltyBalance(addr [20]byte, tokenID *big.Int) (*big.Int, error) {
	canonical, err := canonicalTokenID(tokenID)
	if err != nil {
		return nil, err
	}
	balance := new(big.Int)
	ok, err := m.readRecord(balanceKey(addr, canonical), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetLoyaltyBalance persists the points held by addr under the provided token
// identifier.
func (m *Manager) SetLoyaltyBalance(addr [20]byte, tokenID *big.Int, amount *big.Int) error {
	if addr == ([20]byte{}) {
		return fmt.Errorf("state: balance holder must not be empty")
	}
	canonical, err := canonicalTokenID(tokenID)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: balance must not be negative")
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("state: balance exceeds 256 bits")
	}
	return m.writeRecord(balanceKey(addr, canonical), amount)
}
