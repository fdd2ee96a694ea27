package commission

import (
	"testing"
	"time"

	"ambient-pro/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCommissionRate_Tiers(t *testing.T) {
	for deal := 1; deal <= 10; deal++ {
		assert.Equal(t, 200.0, ComputeCommissionRate(deal), "deal %d", deal)
	}
	for deal := 11; deal <= 20; deal++ {
		assert.Equal(t, 250.0, ComputeCommissionRate(deal), "deal %d", deal)
	}
	assert.Equal(t, FallbackRate, ComputeCommissionRate(21))
	assert.Equal(t, FallbackRate, ComputeCommissionRate(500))
}

func TestPolicy_ConfiguredTiers(t *testing.T) {
	p, err := FromConfig(config.CommissionConfig{
		Tiers: []config.TierConfig{
			{From: 1, To: 5, Rate: 150},
			{From: 6, To: 30, Rate: 300},
		},
		FallbackRate: 175,
	})
	require.NoError(t, err)

	assert.Equal(t, 150.0, p.Rate(5))
	assert.Equal(t, 300.0, p.Rate(6))
	assert.Equal(t, 300.0, p.Rate(30))
	assert.Equal(t, 175.0, p.Rate(31))
	assert.Equal(t, 175.0, p.FallbackRate())
}

func TestPolicy_ConfiguredZeroesAreKept(t *testing.T) {
	p, err := FromConfig(config.CommissionConfig{FallbackRate: 0, PTOPaymentDelayDays: 0})
	require.NoError(t, err)

	assert.Equal(t, 200.0, p.Rate(1))
	assert.Zero(t, p.Rate(21))
	got, err := p.PaymentDate("2024-04-02", time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-04-02", got)
}

func TestNewPolicy_RejectsBadTables(t *testing.T) {
	_, err := NewPolicy([]Tier{{From: 1, To: 10, Rate: 200}, {From: 10, To: 20, Rate: 250}}, 200, 6)
	assert.Error(t, err)

	_, err = NewPolicy([]Tier{{From: 5, To: 1, Rate: 200}}, 200, 6)
	assert.Error(t, err)

	_, err = NewPolicy([]Tier{{From: 1, To: 10, Rate: 0}}, 200, 6)
	assert.Error(t, err)
}

func TestPaymentDate_WithPTO(t *testing.T) {
	got, err := DefaultPolicy().PaymentDate("2024-03-01", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-07", got)

	_, err = DefaultPolicy().PaymentDate("03/01/2024", time.Now())
	assert.Error(t, err)
}

func TestPaymentDate_WithoutPTO(t *testing.T) {
	tests := []struct {
		name  string
		today time.Time
		want  string
	}{
		// 2024-03-06 is a Wednesday.
		{name: "wednesday", today: time.Date(2024, 3, 6, 15, 30, 0, 0, time.UTC), want: "2024-03-15"},
		{name: "thursday", today: time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC), want: "2024-03-15"},
		{name: "friday skips today", today: time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC), want: "2024-03-22"},
		{name: "saturday", today: time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC), want: "2024-03-22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultPolicy().PaymentDate("", tt.today)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			date, err := time.Parse(DateLayout, got)
			require.NoError(t, err)
			assert.Equal(t, time.Friday, date.Weekday())
			assert.GreaterOrEqual(t, date.Sub(time.Date(tt.today.Year(), tt.today.Month(), tt.today.Day(), 0, 0, 0, 0, time.UTC)), 8*24*time.Hour)
		})
	}
}

func TestPaymentAmount(t *testing.T) {
	assert.Equal(t, 1200.0, PaymentAmount(200, 6))
	assert.Equal(t, 1812.5, PaymentAmount(250, 7.25))
	assert.Equal(t, 1633.33, PaymentAmount(200, 8.16666))
	assert.Equal(t, 18000.0, GrossCost(3.00, 6))
}
