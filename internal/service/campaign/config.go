package campaign

import (
	"github.com/Notifuse/outreach/internal/domain"
)

// Config contains configuration for campaign enqueueing
type Config struct {
	Policy domain.DeliveryPolicy

	// Page size used when loading the contact pool of a campaign
	PoolPageSize int
}

// DefaultConfig returns a configuration with the default delivery policy
func DefaultConfig() *Config {
	return &Config{
		Policy:       domain.DefaultDeliveryPolicy(),
		PoolPageSize: 1000,
	}
}
