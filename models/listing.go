package models

import "time"

type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusInactive ListingStatus = "inactive"
	ListingStatusPending  ListingStatus = "pending"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusActive, ListingStatusInactive, ListingStatusPending:
		return true
	}
	return false
}

type Listing struct {
	ID             int64         `json:"id"`
	SellerID       int64         `json:"seller_id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Price          float64       `json:"price"`
	Category       string        `json:"category"`
	CommissionRate float64       `json:"commission_rate"`
	Status         ListingStatus `json:"status"`
	IsPremium      bool          `json:"is_premium"`
	PremiumExpiry  *time.Time    `json:"premium_expiry,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type CreateListingRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description" binding:"required"`
	Price       float64 `json:"price" binding:"required,gt=0"`
	Category    string  `json:"category" binding:"required"`
}

type UpdateListingRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       float64       `json:"price" binding:"omitempty,gt=0"`
	Category    string        `json:"category"`
	Status      ListingStatus `json:"status"`
}

type PremiumRequest struct {
	IsPremium *bool `json:"isPremium" binding:"required"`
}

type CalculateCommissionRequest struct {
	Price    *float64 `json:"price"`
	Category string   `json:"category"`
}

type CommissionResponse struct {
	Price          float64 `json:"price"`
	Category       string  `json:"category"`
	CommissionRate float64 `json:"commissionRate"`
	Commission     float64 `json:"commission"`
	SellerAmount   float64 `json:"sellerAmount"`
}

type SellerAnalytics struct {
	TotalSales        float64        `json:"totalSales"`
	TotalCommission   float64        `json:"totalCommission"`
	ActiveListings    int            `json:"activeListings"`
	CategoryBreakdown map[string]int `json:"categoryBreakdown"`
}

type PremiumStats struct {
	TotalListings         int `json:"totalListings"`
	PremiumListings       int `json:"premiumListings"`
	ActivePremiumListings int `json:"activePremiumListings"`
}
