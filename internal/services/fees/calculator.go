// Package fees converts raw cent amounts into platform fees, provider
// commissions and buffer-adjusted authorization totals. Everything here is
// pure: the calculator takes a config snapshot by value and never reads
// global state, so the same inputs always produce the same cents.
package fees

import (
	"math"

	"casa/internal/config"
	apperrors "casa/internal/errors"
)

type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Authorization is the breakdown of a worst-case hold amount.
type Authorization struct {
	AuthorizedCents     int64
	OriginalCents       int64
	BufferCents         int64
	MaxPlatformFeeCents int64
}

// CaptureSplit is the three-way accounting of one capture.
// TotalCapturedCents = ProviderAmountCents + ProviderFeeCents + PlatformFeeCents
// always holds, and ProviderAmountCents = invoiceTotal - ProviderFeeCents.
type CaptureSplit struct {
	TotalCapturedCents  int64
	ProviderAmountCents int64
	ProviderFeeCents    int64
	PlatformFeeCents    int64
}

// PlatformFee is the homeowner-side fee on top of an invoice amount.
// Fees round up so the platform never under-collects, and never drop below
// the configured minimum.
func (c *Calculator) PlatformFee(cfg config.FeeConfig, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, apperrors.ErrValidation.WithDetail("amount must be positive, got %d", amountCents)
	}
	fee := ceilPercent(amountCents, cfg.PlatformFeePercentage)
	if fee < cfg.PlatformFeeMinimumCents {
		fee = cfg.PlatformFeeMinimumCents
	}
	return fee, nil
}

// ProviderFee is the commission deducted from the provider's payout,
// optionally incremented by the instant-payout surcharge.
func (c *Calculator) ProviderFee(cfg config.FeeConfig, amountCents int64, instantPayout bool) (int64, error) {
	if amountCents <= 0 {
		return 0, apperrors.ErrValidation.WithDetail("amount must be positive, got %d", amountCents)
	}
	pct := cfg.ProviderFeePercentage
	if instantPayout {
		pct += cfg.InstantPayoutFeePercentage
	}
	fee := ceilPercent(amountCents, pct)
	if fee < cfg.ProviderFeeMinimumCents {
		fee = cfg.ProviderFeeMinimumCents
	}
	return fee, nil
}

// AuthorizationAmount computes the hold ceiling for an approved estimate:
// the estimate total, plus the change-order buffer, plus the platform fee
// computed on the buffered total. Charging the fee on the buffered ceiling
// rather than the original total is what guarantees a later capture of any
// invoice within the buffer never exceeds the authorization.
func (c *Calculator) AuthorizationAmount(cfg config.FeeConfig, estimateTotalCents int64) (Authorization, error) {
	if estimateTotalCents <= 0 {
		return Authorization{}, apperrors.ErrValidation.WithDetail("estimate total must be positive, got %d", estimateTotalCents)
	}
	buffer := ceilPercent(estimateTotalCents, cfg.EstimateBufferPercentage)
	buffered := estimateTotalCents + buffer
	maxFee, err := c.PlatformFee(cfg, buffered)
	if err != nil {
		return Authorization{}, err
	}
	return Authorization{
		AuthorizedCents:     buffered + maxFee,
		OriginalCents:       estimateTotalCents,
		BufferCents:         buffer,
		MaxPlatformFeeCents: maxFee,
	}, nil
}

// Split computes the capture accounting for an invoice total. The provider
// payout is the remainder after the commission, never rounded on its own,
// so the identity payout + commission = total holds to the cent.
func (c *Calculator) Split(cfg config.FeeConfig, invoiceTotalCents int64, instantPayout bool) (CaptureSplit, error) {
	if invoiceTotalCents <= 0 {
		return CaptureSplit{}, apperrors.ErrValidation.WithDetail("invoice total must be positive, got %d", invoiceTotalCents)
	}
	platformFee, err := c.PlatformFee(cfg, invoiceTotalCents)
	if err != nil {
		return CaptureSplit{}, err
	}
	providerFee, err := c.ProviderFee(cfg, invoiceTotalCents, instantPayout)
	if err != nil {
		return CaptureSplit{}, err
	}
	return CaptureSplit{
		TotalCapturedCents:  invoiceTotalCents + platformFee,
		ProviderAmountCents: invoiceTotalCents - providerFee,
		ProviderFeeCents:    providerFee,
		PlatformFeeCents:    platformFee,
	}, nil
}

// DiagnosticFee looks up the flat diagnostic-visit fee for a category.
func (c *Calculator) DiagnosticFee(cfg config.FeeConfig, category string) (int64, error) {
	fee, ok := cfg.DiagnosticFees[category]
	if !ok {
		return 0, apperrors.ErrValidation.WithDetail("no diagnostic fee configured for category %q", category)
	}
	return fee, nil
}

// ceilPercent rounds up so fractional cents are never dropped.
func ceilPercent(amountCents int64, pct float64) int64 {
	return int64(math.Ceil(float64(amountCents) * pct / 100))
}
