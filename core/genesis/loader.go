// core/genesis/loader.go
package genesis

import (
	"fmt"
	"math/big"

	"perkledger/core/state"
	"perkledger/native/membership"
	"perkledger/storage"
)

// BuildGenesisFromSpec applies the spec to an empty database: the identifier-0
// tombstone, the program configuration and the opening membership roll, in
// that order. Member tokens receive sequential identifiers in listed order and
// expire one membership lifetime after the genesis timestamp. The caller is
// responsible for ensuring the database has not been initialised before.
func BuildGenesisFromSpec(spec *GenesisSpec, db storage.Database) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return fmt.Errorf("database must not be nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	manager := state.NewManager(db)
	registry := membership.NewRegistry()
	registry.SetState(manager)

	if err := registry.Initialize(); err != nil {
		return fmt.Errorf("initialise registry: %w", err)
	}
	if err := manager.SetLoyaltyGlobalConfig(spec.Config()); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}

	expiresAt := spec.GenesisTimestamp().Unix() + int64(spec.ExpirationPeriodSeconds)
	for i := range spec.Members {
		member := &spec.Members[i]
		id, err := registry.Issue(member.holderAddr, expiresAt)
		if err != nil {
			return fmt.Errorf("members[%d]: issue token: %w", i, err)
		}
		if member.pointsAmt != nil && member.pointsAmt.Sign() > 0 {
			if err := manager.SetLoyaltyBalance(member.holderAddr, id, new(big.Int).Set(member.pointsAmt)); err != nil {
				return fmt.Errorf("members[%d]: seed points: %w", i, err)
			}
		}
	}
	return nil
}
