package loyalty

const (
	// DefaultExpirationPeriodSeconds is the membership lifetime applied when
	// the persisted configuration carries no explicit period (365 days).
	DefaultExpirationPeriodSeconds = 31_536_000
)

// ApplyDefaults ensures unset fields fall back to module defaults.
func (c *GlobalConfig) ApplyDefaults() *GlobalConfig {
	if c == nil {
		return nil
	}
	if c.ExpirationPeriodSeconds == 0 {
		c.ExpirationPeriodSeconds = DefaultExpirationPeriodSeconds
	}
	return c
}
