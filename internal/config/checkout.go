package config

import (
	"fmt"
)

// CheckoutPolicy holds payment, delivery, and installment business rules.
type CheckoutPolicy struct {
	// Installment plan
	InstallmentPeriods    int     // Number of installment periods (default: 3)
	InstallmentSpanDays   int     // Total days the plan runs (default: 60)
	InstallmentFeeRate    float64 // One-time service fee rate applied to the price (default: 0.03)
	InstallmentRoundUnit  int     // Per-period amounts round up to this unit in THB (default: 500)
	InstallmentDueOffsets []int   // Due date offsets in days from order creation (default: 0, 30, 60)

	// Deposit
	DepositPercent float64 // Deposit percentage of the price (default: 30)

	// Delivery fees in THB
	EMSFee    int // Postal delivery fee (default: 150)
	GrabFee   int // Same-day courier fee, collected on delivery (default: 0)
	PickupFee int // Store pickup fee (default: 0)

	// Address acceptance
	AddressMinEmergencyLen int // Long free-form addresses with a phone are accepted from this length (default: 50)
	AddressHardAcceptLen   int // Addresses at least this long are accepted unconditionally (default: 80)
}

// DefaultCheckoutPolicy returns the standard policy.
func DefaultCheckoutPolicy() CheckoutPolicy {
	return CheckoutPolicy{
		InstallmentPeriods:    3,
		InstallmentSpanDays:   60,
		InstallmentFeeRate:    0.03,
		InstallmentRoundUnit:  500,
		InstallmentDueOffsets: []int{0, 30, 60},

		DepositPercent: 30,

		EMSFee:    150,
		GrabFee:   0,
		PickupFee: 0,

		AddressMinEmergencyLen: 50,
		AddressHardAcceptLen:   80,
	}
}

// LoadCheckoutPolicy returns DefaultCheckoutPolicy with environment overrides.
func LoadCheckoutPolicy() CheckoutPolicy {
	p := DefaultCheckoutPolicy()

	p.InstallmentPeriods = getIntEnv("INSTALLMENT_PERIODS", p.InstallmentPeriods)
	p.InstallmentSpanDays = getIntEnv("INSTALLMENT_SPAN_DAYS", p.InstallmentSpanDays)
	p.InstallmentFeeRate = getFloatEnv("INSTALLMENT_FEE_RATE", p.InstallmentFeeRate)
	p.InstallmentRoundUnit = getIntEnv("INSTALLMENT_ROUND_UNIT", p.InstallmentRoundUnit)

	p.DepositPercent = getFloatEnv("DEPOSIT_PERCENT", p.DepositPercent)

	p.EMSFee = getIntEnv("EMS_FEE", p.EMSFee)
	p.GrabFee = getIntEnv("GRAB_FEE", p.GrabFee)

	return p
}

// Validate checks checkout policy invariants.
func (p *CheckoutPolicy) Validate() error {
	if p.InstallmentPeriods < 2 {
		return fmt.Errorf("INSTALLMENT_PERIODS must be at least 2, got %d", p.InstallmentPeriods)
	}
	if p.InstallmentFeeRate < 0 || p.InstallmentFeeRate >= 1 {
		return fmt.Errorf("INSTALLMENT_FEE_RATE must be in [0,1), got %v", p.InstallmentFeeRate)
	}
	if p.InstallmentRoundUnit < 1 {
		return fmt.Errorf("INSTALLMENT_ROUND_UNIT must be at least 1, got %d", p.InstallmentRoundUnit)
	}
	if len(p.InstallmentDueOffsets) != p.InstallmentPeriods {
		return fmt.Errorf("installment due offsets (%d) must match periods (%d)",
			len(p.InstallmentDueOffsets), p.InstallmentPeriods)
	}
	if p.DepositPercent <= 0 || p.DepositPercent >= 100 {
		return fmt.Errorf("DEPOSIT_PERCENT must be in (0,100), got %v", p.DepositPercent)
	}
	if p.EMSFee < 0 || p.GrabFee < 0 || p.PickupFee < 0 {
		return fmt.Errorf("delivery fees cannot be negative")
	}
	return nil
}
