// core/genesis/spec_test.go
package genesis

import (
	"bytes"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"perkledger/core/state"
	"perkledger/core/types"
	"perkledger/crypto"
	"perkledger/native/membership"
	"perkledger/storage"
)

func testBech32(fill byte) string {
	return crypto.NewAddress(crypto.PerkPrefix, bytes.Repeat([]byte{fill}, 20)).String()
}

func validSpec() GenesisSpec {
	return GenesisSpec{
		GenesisTime:             "2026-01-01T00:00:00Z",
		Owner:                   testBech32(0xA0),
		Admins:                  []string{testBech32(0xA1)},
		Transferable:            false,
		ExpirationPeriodSeconds: 3600,
		Members: []MemberSpec{
			{Holder: testBech32(0x01), Points: "100"},
			{Holder: testBech32(0x02)},
			{Holder: testBech32(0x01), Points: "7"},
		},
	}
}

func TestLoadGenesisSpecAndBuildGenesis(t *testing.T) {
	spec := validSpec()

	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	loaded, err := LoadGenesisSpec(path)
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	if loaded.GenesisTimestamp().Unix() != 1767225600 {
		t.Fatalf("unexpected genesis timestamp %d", loaded.GenesisTimestamp().Unix())
	}
	wantOwner := [20]byte{}
	copy(wantOwner[:], bytes.Repeat([]byte{0xA0}, 20))
	if loaded.OwnerAddress() != wantOwner {
		t.Fatalf("unexpected owner %x", loaded.OwnerAddress())
	}
	if admins := loaded.AdminAddresses(); len(admins) != 1 || admins[0][0] != 0xA1 {
		t.Fatalf("unexpected admins %x", admins)
	}
	cfg := loaded.Config()
	if cfg.Transferable || cfg.ExpirationPeriodSeconds != 3600 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	db := storage.NewMemDB()
	defer db.Close()
	if err := BuildGenesisFromSpec(loaded, db); err != nil {
		t.Fatalf("build genesis: %v", err)
	}

	manager := state.NewManager(db)
	registry := membership.NewRegistry()
	registry.SetState(manager)

	// Identifier 0 is the tombstone; members get 1..3 in listed order.
	burnt, err := registry.IsBurnt(big.NewInt(0))
	if err != nil || !burnt {
		t.Fatalf("expected burnt tombstone, burnt=%v err=%v", burnt, err)
	}
	count, err := manager.TokenCount()
	if err != nil || count.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected three issued tokens, count=%s err=%v", count, err)
	}

	wantExpiry := loaded.GenesisTimestamp().Unix() + 3600
	var holder1 [20]byte
	copy(holder1[:], bytes.Repeat([]byte{0x01}, 20))
	var holder2 [20]byte
	copy(holder2[:], bytes.Repeat([]byte{0x02}, 20))

	token, ok, err := registry.Token(big.NewInt(1))
	if err != nil || !ok {
		t.Fatalf("token 1 missing: ok=%v err=%v", ok, err)
	}
	if token.Holder != holder1 || token.ExpiresAt != wantExpiry || token.Status != types.TokenActive {
		t.Fatalf("unexpected token 1: %+v", token)
	}
	token, _, err = registry.Token(big.NewInt(2))
	if err != nil || token.Holder != holder2 {
		t.Fatalf("unexpected token 2: %+v err=%v", token, err)
	}
	// A repeated holder receives a second, independent token.
	token, _, err = registry.Token(big.NewInt(3))
	if err != nil || token.Holder != holder1 {
		t.Fatalf("unexpected token 3: %+v err=%v", token, err)
	}

	balance, err := manager.LoyaltyBalance(holder1, big.NewInt(1))
	if err != nil || balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 points under token 1, got %s err=%v", balance, err)
	}
	balance, err = manager.LoyaltyBalance(holder2, big.NewInt(2))
	if err != nil || balance.Sign() != 0 {
		t.Fatalf("expected zero points under token 2, got %s err=%v", balance, err)
	}
	balance, err = manager.LoyaltyBalance(holder1, big.NewInt(3))
	if err != nil || balance.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected 7 points under token 3, got %s err=%v", balance, err)
	}

	stored, err := manager.LoyaltyGlobalConfig()
	if err != nil || stored == nil || stored.Transferable || stored.ExpirationPeriodSeconds != 3600 {
		t.Fatalf("unexpected stored config %+v err=%v", stored, err)
	}
}

func TestLoadGenesisSpecRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	raw := []byte(`{"genesisTime":"2026-01-01T00:00:00Z","owner":"` + testBech32(0xA0) + `","expirationPeriodSeconds":60,"mystery":true}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	if _, err := LoadGenesisSpec(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestGenesisSpecValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*GenesisSpec)
	}{
		{"missing time", func(s *GenesisSpec) { s.GenesisTime = "" }},
		{"bad time", func(s *GenesisSpec) { s.GenesisTime = "yesterday" }},
		{"missing owner", func(s *GenesisSpec) { s.Owner = "" }},
		{"bad owner hrp", func(s *GenesisSpec) {
			s.Owner = crypto.NewAddress("other", bytes.Repeat([]byte{0xA0}, 20)).String()
		}},
		{"zero owner", func(s *GenesisSpec) {
			s.Owner = crypto.NewAddress(crypto.PerkPrefix, make([]byte, 20)).String()
		}},
		{"duplicate admin", func(s *GenesisSpec) { s.Admins = append(s.Admins, s.Admins[0]) }},
		{"owner listed as admin", func(s *GenesisSpec) { s.Admins = append(s.Admins, s.Owner) }},
		{"zero period", func(s *GenesisSpec) { s.ExpirationPeriodSeconds = 0 }},
		{"missing member holder", func(s *GenesisSpec) { s.Members[0].Holder = "" }},
		{"negative points", func(s *GenesisSpec) { s.Members[0].Points = "-5" }},
		{"garbled points", func(s *GenesisSpec) { s.Members[0].Points = "12x" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)
			if err := spec.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseBech32AccountRejectsForeignPrefix(t *testing.T) {
	foreign := crypto.NewAddress("shop", bytes.Repeat([]byte{0x05}, 20)).String()
	if _, err := ParseBech32Account(foreign); err == nil {
		t.Fatalf("expected error for foreign hrp")
	}
	parsed, err := ParseBech32Account(testBech32(0x05))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed[0] != 0x05 || parsed[19] != 0x05 {
		t.Fatalf("unexpected payload %x", parsed)
	}
}
