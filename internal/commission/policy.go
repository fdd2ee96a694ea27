// Package commission maps a closer's deal history to a commission rate and
// derives when that commission is paid.
package commission

import (
	"fmt"
	"math"
	"time"

	"ambient-pro/internal/common/config"
)

// FallbackRate applies to deal numbers outside every tier, including deals
// beyond the last tier.
const FallbackRate = 200.0

// DefaultPTOPaymentDelayDays is the gap between a PTO date and payout.
const DefaultPTOPaymentDelayDays = 6

// DateLayout is the calendar date format used on records.
const DateLayout = "2006-01-02"

// Tier is an inclusive range of deal numbers sharing a rate per kW.
type Tier struct {
	From int
	To   int
	Rate float64
}

// DefaultTiers is the standard rate table.
var DefaultTiers = []Tier{
	{From: 1, To: 10, Rate: 200},
	{From: 11, To: 20, Rate: 250},
}

// Policy is a tier table plus payout timing. It is immutable and safe for
// concurrent use.
type Policy struct {
	tiers        []Tier
	fallback     float64
	ptoDelayDays int
}

// DefaultPolicy returns the standard policy.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(DefaultTiers, FallbackRate, DefaultPTOPaymentDelayDays)
	return p
}

// NewPolicy validates the tier table and builds a Policy.
func NewPolicy(tiers []Tier, fallback float64, ptoDelayDays int) (*Policy, error) {
	prevTo := 0
	for i, t := range tiers {
		if t.From <= prevTo || t.To < t.From {
			return nil, fmt.Errorf("tier %d [%d,%d] overlaps or is out of order", i, t.From, t.To)
		}
		if t.Rate <= 0 {
			return nil, fmt.Errorf("tier %d has non-positive rate %v", i, t.Rate)
		}
		prevTo = t.To
	}
	if fallback < 0 {
		return nil, fmt.Errorf("fallback rate %v is negative", fallback)
	}
	if ptoDelayDays < 0 {
		return nil, fmt.Errorf("pto payment delay %d is negative", ptoDelayDays)
	}

	return &Policy{
		tiers:        append([]Tier(nil), tiers...),
		fallback:     fallback,
		ptoDelayDays: ptoDelayDays,
	}, nil
}

// FromConfig builds a Policy from the commission config section. An empty
// tier table means the default tiers. The fallback rate and PTO delay are
// taken as given, zero included; the config loader supplies their defaults.
func FromConfig(cfg config.CommissionConfig) (*Policy, error) {
	tiers := make([]Tier, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		tiers = append(tiers, Tier{From: t.From, To: t.To, Rate: t.Rate})
	}
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	return NewPolicy(tiers, cfg.FallbackRate, cfg.PTOPaymentDelayDays)
}

// Rate returns the commission per kW for the given 1-based deal number.
func (p *Policy) Rate(dealNumber int) float64 {
	for _, t := range p.tiers {
		if dealNumber >= t.From && dealNumber <= t.To {
			return t.Rate
		}
	}
	return p.fallback
}

// FallbackRate returns the rate used outside every tier.
func (p *Policy) FallbackRate() float64 {
	return p.fallback
}

// PaymentDate derives the payout date. With a PTO date the payout lands
// ptoDelayDays after it; otherwise on the Friday after the next Friday
// following today.
func (p *Policy) PaymentDate(ptoDate string, today time.Time) (string, error) {
	if ptoDate != "" {
		pto, err := time.Parse(DateLayout, ptoDate)
		if err != nil {
			return "", fmt.Errorf("invalid ptoDate %q: %w", ptoDate, err)
		}
		return pto.AddDate(0, 0, p.ptoDelayDays).Format(DateLayout), nil
	}
	return NextFriday(today).AddDate(0, 0, 7).Format(DateLayout), nil
}

// NextFriday returns the first Friday strictly after t's calendar day.
func NextFriday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	days := (int(time.Friday) - int(day.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return day.AddDate(0, 0, days)
}

// ComputeCommissionRate applies the default policy.
func ComputeCommissionRate(dealNumber int) float64 {
	return defaultPolicy.Rate(dealNumber)
}

var defaultPolicy = DefaultPolicy()

// PaymentAmount is rate times system size in kW, rounded to cents.
func PaymentAmount(rate, systemSizeKW float64) float64 {
	return roundCents(rate * systemSizeKW)
}

// GrossCost is the contract value: price per watt times size in watts.
func GrossCost(grossPPW, systemSizeKW float64) float64 {
	return roundCents(grossPPW * systemSizeKW * 1000)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
