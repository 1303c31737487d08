// Package commission computes the platform commission on a sale. A Calculator
// is immutable after construction and safe for concurrent use.
package commission

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"marketplace-svc/models"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidPrice    = errors.New("price must be a finite number >= 0")
)

// DefaultRates is the platform's standard table.
func DefaultRates() map[string]float64 {
	return map[string]float64{
		"general":     0.01,
		"premium":     0.01,
		"services":    0.01,
		"digital":     0.01,
		"high-volume": 0.01,
	}
}

type Split struct {
	Price        float64
	Category     string
	Rate         float64
	Commission   float64
	SellerAmount float64
}

type Calculator struct {
	rates map[string]float64
}

// New validates and copies the rate table. Every rate must lie in [0, 1].
func New(rates map[string]float64) (*Calculator, error) {
	if len(rates) == 0 {
		return nil, errors.New("commission rate table is empty")
	}
	table := make(map[string]float64, len(rates))
	for category, rate := range rates {
		if category == "" {
			return nil, errors.New("commission rate table has an empty category")
		}
		if math.IsNaN(rate) || rate < 0 || rate > 1 {
			return nil, fmt.Errorf("commission rate %v for %q is outside [0, 1]", rate, category)
		}
		table[category] = rate
	}
	return &Calculator{rates: table}, nil
}

func (c *Calculator) Rate(category string) (float64, error) {
	rate, ok := c.rates[category]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return rate, nil
}

// CommissionFor splits price into the platform commission and the seller's
// share. The two always add back up to price.
func (c *Calculator) CommissionFor(price float64, category string) (Split, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return Split{}, ErrInvalidPrice
	}
	rate, err := c.Rate(category)
	if err != nil {
		return Split{}, err
	}

	commission := price * rate
	return Split{
		Price:        price,
		Category:     category,
		Rate:         rate,
		Commission:   commission,
		SellerAmount: price - commission,
	}, nil
}

func (c *Calculator) Rates() map[string]float64 {
	out := make(map[string]float64, len(c.rates))
	for k, v := range c.rates {
		out[k] = v
	}
	return out
}

func (c *Calculator) Categories() []string {
	out := make([]string, 0, len(c.rates))
	for k := range c.rates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Summarize aggregates a seller's listings. Commission is taken from each
// listing's own rate snapshot.
func Summarize(listings []models.Listing) models.SellerAnalytics {
	a := models.SellerAnalytics{CategoryBreakdown: map[string]int{}}
	for _, l := range listings {
		a.TotalSales += l.Price
		a.TotalCommission += l.Price * l.CommissionRate
		if l.Status == models.ListingStatusActive {
			a.ActiveListings++
		}
		a.CategoryBreakdown[l.Category]++
	}
	return a
}

// PremiumSummary counts premium listings; a premium listing whose expiry has
// passed is not counted as active.
func PremiumSummary(listings []models.Listing, now time.Time) models.PremiumStats {
	var s models.PremiumStats
	s.TotalListings = len(listings)
	for _, l := range listings {
		if !l.IsPremium {
			continue
		}
		s.PremiumListings++
		if l.PremiumExpiry != nil && l.PremiumExpiry.After(now) {
			s.ActivePremiumListings++
		}
	}
	return s
}
