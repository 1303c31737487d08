package commission

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"marketplace-svc/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefault(t *testing.T) *Calculator {
	t.Helper()
	calc, err := New(DefaultRates())
	require.NoError(t, err)
	return calc
}

func TestCommissionFor_DefaultRates(t *testing.T) {
	calc := newDefault(t)

	split, err := calc.CommissionFor(100, "general")
	require.NoError(t, err)

	assert.Equal(t, 0.01, split.Rate)
	assert.InDelta(t, 1.0, split.Commission, 1e-9)
	assert.InDelta(t, 99.0, split.SellerAmount, 1e-9)
}

func TestCommissionFor_SumsToPrice(t *testing.T) {
	calc, err := New(map[string]float64{"general": 0.01, "digital": 0.15, "free": 0, "all": 1})
	require.NoError(t, err)

	prices := []float64{0, 0.01, 1, 19.99, 1234.56, 1e9}
	for _, category := range calc.Categories() {
		for _, price := range prices {
			split, err := calc.CommissionFor(price, category)
			require.NoError(t, err)
			assert.InDelta(t, price, split.Commission+split.SellerAmount, 1e-6, "%s %v", category, price)
			assert.GreaterOrEqual(t, split.Commission, 0.0)
			assert.GreaterOrEqual(t, split.SellerAmount, 0.0)
		}
	}
}

func TestCommissionFor_UnknownCategory(t *testing.T) {
	calc := newDefault(t)

	_, err := calc.CommissionFor(100, "toys")
	assert.True(t, errors.Is(err, ErrUnknownCategory))
}

func TestCommissionFor_InvalidPrice(t *testing.T) {
	calc := newDefault(t)

	for _, price := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := calc.CommissionFor(price, "general")
		assert.True(t, errors.Is(err, ErrInvalidPrice), "price %v", price)
	}
}

func TestNew_RejectsBadTables(t *testing.T) {
	cases := map[string]map[string]float64{
		"empty":          {},
		"negative":       {"general": -0.1},
		"above one":      {"general": 1.5},
		"nan":            {"general": math.NaN()},
		"empty category": {"": 0.1},
	}
	for name, rates := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(rates)
			assert.Error(t, err)
		})
	}
}

func TestRates_ReturnsCopy(t *testing.T) {
	calc := newDefault(t)

	rates := calc.Rates()
	rates["general"] = 0.5

	rate, err := calc.Rate("general")
	require.NoError(t, err)
	assert.Equal(t, 0.01, rate)
}

func TestCommissionFor_Concurrent(t *testing.T) {
	calc := newDefault(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			split, err := calc.CommissionFor(200, "digital")
			assert.NoError(t, err)
			assert.InDelta(t, 2.0, split.Commission, 1e-9)
		}()
	}
	wg.Wait()
}

func TestSummarize(t *testing.T) {
	listings := []models.Listing{
		{Price: 100, CommissionRate: 0.01, Category: "general", Status: models.ListingStatusActive},
		{Price: 50, CommissionRate: 0.1, Category: "digital", Status: models.ListingStatusPending},
		{Price: 25, CommissionRate: 0.01, Category: "general", Status: models.ListingStatusActive},
	}

	a := Summarize(listings)

	assert.InDelta(t, 175.0, a.TotalSales, 1e-9)
	assert.InDelta(t, 6.25, a.TotalCommission, 1e-9)
	assert.Equal(t, 2, a.ActiveListings)
	assert.Equal(t, map[string]int{"general": 2, "digital": 1}, a.CategoryBreakdown)
}

func TestPremiumSummary(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	listings := []models.Listing{
		{IsPremium: true, PremiumExpiry: &future},
		{IsPremium: true, PremiumExpiry: &past},
		{IsPremium: false},
	}

	s := PremiumSummary(listings, now)

	assert.Equal(t, 3, s.TotalListings)
	assert.Equal(t, 2, s.PremiumListings)
	assert.Equal(t, 1, s.ActivePremiumListings)
}
