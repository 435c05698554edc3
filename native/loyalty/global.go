package loyalty

import (
	"fmt"
	"math"
)

// GlobalConfig controls the behaviour of the points ledger.
//
// Transferable starts out false on a fresh system and only the program owner
// can flip it. ExpirationPeriodSeconds is written once at initialization; no
// operation mutates it afterwards, so the membership lifetime stays fixed for
// the life of the system even across restarts.
type GlobalConfig struct {
	Transferable            bool
	ExpirationPeriodSeconds uint64
}

// Clone produces a copy of the configuration.
func (c *GlobalConfig) Clone() *GlobalConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Normalize fills defaulted fields. The method returns the receiver to allow
// chaining.
func (c *GlobalConfig) Normalize() *GlobalConfig {
	if c == nil {
		return nil
	}
	c.ApplyDefaults()
	return c
}

// Validate performs static validation of the configuration.
func (c *GlobalConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("nil global config")
	}
	if c.ExpirationPeriodSeconds == 0 {
		return fmt.Errorf("expiration period must be positive")
	}
	if c.ExpirationPeriodSeconds > math.MaxInt64 {
		return fmt.Errorf("expiration period overflows the clock domain")
	}
	return nil
}
