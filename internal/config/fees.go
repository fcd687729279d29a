package config

import (
	"fmt"
)

// FeeConfig is one immutable, versioned snapshot of the fee schedule. Admins
// edit the schedule out of band; every calculation receives a snapshot by
// value so a mid-flight edit can never change the math halfway through.
type FeeConfig struct {
	Version int `json:"version"`

	// Homeowner-side platform fee, charged on top of the invoice amount.
	PlatformFeePercentage   float64 `json:"platform_fee_percentage"`
	PlatformFeeMinimumCents int64   `json:"platform_fee_minimum_cents"`

	// Provider commission, deducted from the provider's payout.
	ProviderFeePercentage   float64 `json:"provider_fee_percentage"`
	ProviderFeeMinimumCents int64   `json:"provider_fee_minimum_cents"`

	// Extra percentage authorized above the estimate to cover change orders.
	EstimateBufferPercentage float64 `json:"estimate_buffer_percentage"`

	// Surcharge added to the provider commission for expedited payouts.
	InstantPayoutFeePercentage float64 `json:"instant_payout_fee_percentage"`

	// Flat diagnostic visit fees per service category, in cents.
	DiagnosticFees map[string]int64 `json:"diagnostic_fees"`

	AutoApproveHours   int `json:"auto_approve_hours"`
	DisputeWindowHours int `json:"dispute_window_hours"`
}

// Validate rejects a bad schedule at load time so calculators never have to
// range-check per call.
func (c FeeConfig) Validate() error {
	if c.EstimateBufferPercentage < 0 || c.EstimateBufferPercentage > 100 {
		return fmt.Errorf("estimate buffer percentage %.2f outside [0,100]", c.EstimateBufferPercentage)
	}
	if c.PlatformFeePercentage < 0 || c.PlatformFeePercentage > 100 {
		return fmt.Errorf("platform fee percentage %.2f outside [0,100]", c.PlatformFeePercentage)
	}
	if c.ProviderFeePercentage < 0 || c.ProviderFeePercentage > 100 {
		return fmt.Errorf("provider fee percentage %.2f outside [0,100]", c.ProviderFeePercentage)
	}
	if c.InstantPayoutFeePercentage < 0 || c.InstantPayoutFeePercentage > 100 {
		return fmt.Errorf("instant payout fee percentage %.2f outside [0,100]", c.InstantPayoutFeePercentage)
	}
	if c.PlatformFeeMinimumCents < 0 || c.ProviderFeeMinimumCents < 0 {
		return fmt.Errorf("fee minimums must not be negative")
	}
	for category, cents := range c.DiagnosticFees {
		if cents < 0 {
			return fmt.Errorf("diagnostic fee for %q must not be negative", category)
		}
	}
	if c.AutoApproveHours <= 0 {
		return fmt.Errorf("auto approve hours must be positive")
	}
	if c.DisputeWindowHours <= 0 {
		return fmt.Errorf("dispute window hours must be positive")
	}
	if c.DisputeWindowHours > c.AutoApproveHours {
		return fmt.Errorf("dispute window (%dh) must not outlast the auto-approve window (%dh)",
			c.DisputeWindowHours, c.AutoApproveHours)
	}
	return nil
}

// DefaultFeeConfig is the schedule used when no versioned row exists yet,
// seeded from the environment.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		Version:                    1,
		PlatformFeePercentage:      GetFloatEnv("PLATFORM_FEE_PERCENTAGE", 3.0),
		PlatformFeeMinimumCents:    int64(GetIntEnv("PLATFORM_FEE_MINIMUM_CENTS", 200)),
		ProviderFeePercentage:      GetFloatEnv("PROVIDER_FEE_PERCENTAGE", 8.0),
		ProviderFeeMinimumCents:    int64(GetIntEnv("PROVIDER_FEE_MINIMUM_CENTS", 500)),
		EstimateBufferPercentage:   GetFloatEnv("ESTIMATE_BUFFER_PERCENTAGE", 10.0),
		InstantPayoutFeePercentage: GetFloatEnv("INSTANT_PAYOUT_FEE_PERCENTAGE", 1.0),
		DiagnosticFees: map[string]int64{
			"plumbing":   int64(GetIntEnv("DIAGNOSTIC_FEE_PLUMBING_CENTS", 8900)),
			"electrical": int64(GetIntEnv("DIAGNOSTIC_FEE_ELECTRICAL_CENTS", 9900)),
			"hvac":       int64(GetIntEnv("DIAGNOSTIC_FEE_HVAC_CENTS", 12900)),
			"general":    int64(GetIntEnv("DIAGNOSTIC_FEE_GENERAL_CENTS", 7900)),
		},
		AutoApproveHours:   GetIntEnv("AUTO_APPROVE_HOURS", 72),
		DisputeWindowHours: GetIntEnv("DISPUTE_WINDOW_HOURS", 48),
	}
}
