// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"os"
	"strings"
	"time"

	"perkledger/native/loyalty"
)

// GenesisSpec is the bootstrap document for a fresh ledger: the program
// authority roster, the program-wide configuration fixed for the life of the
// deployment, and the opening membership roll.
type GenesisSpec struct {
	GenesisTime             string       `json:"genesisTime"`
	Owner                   string       `json:"owner"`
	Admins                  []string     `json:"admins,omitempty"`
	Transferable            bool         `json:"transferable"`
	ExpirationPeriodSeconds uint64       `json:"expirationPeriodSeconds"`
	Members                 []MemberSpec `json:"members,omitempty"`

	genesisTimestamp time.Time
	ownerAddr        [20]byte
	adminAddrs       [][20]byte
}

// MemberSpec seeds one membership token. The same holder may appear multiple
// times and receives one token per entry, exactly as repeated mints would.
type MemberSpec struct {
	Holder string `json:"holder"`
	Points string `json:"points,omitempty"`

	holderAddr [20]byte
	pointsAmt  *big.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// OwnerAddress returns the parsed program owner. Valid only after Validate.
func (s *GenesisSpec) OwnerAddress() [20]byte { return s.ownerAddr }

// AdminAddresses returns the parsed admin roster. Valid only after Validate.
func (s *GenesisSpec) AdminAddresses() [][20]byte {
	out := make([][20]byte, len(s.adminAddrs))
	copy(out, s.adminAddrs)
	return out
}

// Config renders the spec's program-wide settings as the ledger configuration
// record written at genesis.
func (s *GenesisSpec) Config() *loyalty.GlobalConfig {
	cfg := &loyalty.GlobalConfig{
		Transferable:            s.Transferable,
		ExpirationPeriodSeconds: s.ExpirationPeriodSeconds,
	}
	return cfg.Normalize()
}

// Validate checks the spec and caches the parsed address and amount forms the
// loader consumes. It is idempotent and invoked by LoadGenesisSpec.
func (s *GenesisSpec) Validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if strings.TrimSpace(s.Owner) == "" {
		return fmt.Errorf("owner must be provided")
	}
	owner, err := ParseBech32Account(s.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if owner == ([20]byte{}) {
		return fmt.Errorf("owner must not be the zero address")
	}
	s.ownerAddr = owner

	seen := map[[20]byte]struct{}{owner: {}}
	s.adminAddrs = s.adminAddrs[:0]
	for i, adminStr := range s.Admins {
		admin, err := ParseBech32Account(adminStr)
		if err != nil {
			return fmt.Errorf("admins[%d]: %w", i, err)
		}
		if admin == ([20]byte{}) {
			return fmt.Errorf("admins[%d]: must not be the zero address", i)
		}
		if _, dup := seen[admin]; dup {
			return fmt.Errorf("admins[%d]: duplicate address %q", i, adminStr)
		}
		seen[admin] = struct{}{}
		s.adminAddrs = append(s.adminAddrs, admin)
	}

	if s.ExpirationPeriodSeconds == 0 {
		return fmt.Errorf("expirationPeriodSeconds must be greater than zero")
	}
	if s.ExpirationPeriodSeconds > math.MaxInt64 {
		return fmt.Errorf("expirationPeriodSeconds too large: %d", s.ExpirationPeriodSeconds)
	}

	for i := range s.Members {
		if err := s.Members[i].validate(); err != nil {
			return fmt.Errorf("members[%d]: %w", i, err)
		}
	}
	return nil
}

func (m *MemberSpec) validate() error {
	if strings.TrimSpace(m.Holder) == "" {
		return fmt.Errorf("holder must be provided")
	}
	holder, err := ParseBech32Account(m.Holder)
	if err != nil {
		return fmt.Errorf("holder: %w", err)
	}
	if holder == ([20]byte{}) {
		return fmt.Errorf("holder must not be the zero address")
	}
	m.holderAddr = holder

	points, err := parseAmountString(m.Points)
	if err != nil {
		return fmt.Errorf("points: %w", err)
	}
	m.pointsAmt = points
	return nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
