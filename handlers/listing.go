package handlers

import (
	"net/http"
	"strconv"
	"time"

	"marketplace-svc/commission"
	"marketplace-svc/idgen"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const premiumPeriod = 30 * 24 * time.Hour

type ListingHandler struct {
	listings store.ListingStore
	calc     *commission.Calculator
	ids      *idgen.Generator
	logger   *zap.Logger
	now      func() time.Time
}

func NewListingHandler(listings store.ListingStore, calc *commission.Calculator, ids *idgen.Generator, logger *zap.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, calc: calc, ids: ids, logger: logger, now: time.Now}
}

func (h *ListingHandler) CreateListing(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service").Start(c.Request.Context(), "CreateListing")
	defer span.End()

	sellerID, ok := callerID(c)
	if !ok {
		return
	}

	var req models.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	// the rate in force now is stored with the listing
	rate, err := h.calc.Rate(req.Category)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	now := h.now().UTC()
	listing := &models.Listing{
		ID:             h.ids.Next(),
		SellerID:       sellerID,
		Title:          req.Title,
		Description:    req.Description,
		Price:          req.Price,
		Category:       req.Category,
		CommissionRate: rate,
		Status:         models.ListingStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.listings.CreateListing(ctx, listing); err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	span.SetAttributes(attribute.Int64("listing.id", listing.ID))
	h.logger.Info("Listing created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("listing_id", listing.ID),
		zap.Int64("seller_id", sellerID),
	)
	c.JSON(http.StatusCreated, listing)
}

func (h *ListingHandler) GetListings(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service").Start(c.Request.Context(), "GetListings")
	defer span.End()

	sellerID, ok := callerID(c)
	if !ok {
		return
	}

	listings, err := h.listings.ListListingsBySeller(ctx, sellerID)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	span.SetAttributes(attribute.Int("listings.count", len(listings)))
	c.JSON(http.StatusOK, listings)
}

func (h *ListingHandler) UpdateListing(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service").Start(c.Request.Context(), "UpdateListing")
	defer span.End()

	listing, ok := h.ownedListing(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("listing.id", listing.ID))

	var req models.UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if req.Title != "" {
		listing.Title = req.Title
	}
	if req.Description != "" {
		listing.Description = req.Description
	}
	if req.Price > 0 {
		listing.Price = req.Price
	}
	if req.Category != "" && req.Category != listing.Category {
		rate, err := h.calc.Rate(req.Category)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		listing.Category = req.Category
		listing.CommissionRate = rate
	}
	if req.Status != "" {
		if !req.Status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active, inactive or pending", "code": "invalid_request"})
			return
		}
		listing.Status = req.Status
	}
	listing.UpdatedAt = h.now().UTC()

	if err := h.listings.UpdateListing(ctx, listing); err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Listing updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("listing_id", listing.ID),
	)
	c.JSON(http.StatusOK, listing)
}

func (h *ListingHandler) DeleteListing(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service").Start(c.Request.Context(), "DeleteListing")
	defer span.End()

	sellerID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := listingID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("listing.id", id))

	if err := h.listings.DeleteListing(ctx, id, sellerID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Listing deleted",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("listing_id", id),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Listing deleted successfully"})
}

func (h *ListingHandler) SetPremium(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service").Start(c.Request.Context(), "SetPremium")
	defer span.End()

	listing, ok := h.ownedListing(c)
	if !ok {
		return
	}

	var req models.PremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	now := h.now().UTC()
	listing.IsPremium = *req.IsPremium
	listing.PremiumExpiry = nil
	if listing.IsPremium {
		expiry := now.Add(premiumPeriod)
		listing.PremiumExpiry = &expiry
	}
	listing.UpdatedAt = now

	if err := h.listings.UpdateListing(ctx, listing); err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	span.SetAttributes(
		attribute.Int64("listing.id", listing.ID),
		attribute.Bool("listing.premium", listing.IsPremium),
	)
	c.JSON(http.StatusOK, listing)
}

func (h *ListingHandler) GetAnalytics(c *gin.Context) {
	sellerID, ok := callerID(c)
	if !ok {
		return
	}

	listings, err := h.listings.ListListingsBySeller(c.Request.Context(), sellerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, commission.Summarize(listings))
}

func (h *ListingHandler) GetPremiumStats(c *gin.Context) {
	sellerID, ok := callerID(c)
	if !ok {
		return
	}

	listings, err := h.listings.ListListingsBySeller(c.Request.Context(), sellerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, commission.PremiumSummary(listings, h.now()))
}

// ownedListing loads the :id listing of the caller. Listings of other sellers
// are reported as not found.
func (h *ListingHandler) ownedListing(c *gin.Context) (*models.Listing, bool) {
	sellerID, ok := callerID(c)
	if !ok {
		return nil, false
	}
	id, ok := listingID(c)
	if !ok {
		return nil, false
	}

	listing, err := h.listings.GetListing(c.Request.Context(), id)
	if err == nil && listing.SellerID != sellerID {
		err = store.ErrNotFound
	}
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}
	return listing, true
}

func listingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id", "code": "invalid_request"})
		return 0, false
	}
	return id, true
}
