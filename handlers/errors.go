package handlers

import (
	"errors"
	"net/http"

	"marketplace-svc/circuitbreaker"
	"marketplace-svc/commission"
	"marketplace-svc/ledger"
	"marketplace-svc/middleware"
	"marketplace-svc/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: a circuit-open error is also a processor-unavailable error.
var errorMappings = []errorMapping{
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ledger.ErrUnsupportedCurrency, http.StatusBadRequest, "unsupported_currency"},
	{ledger.ErrInvalidIntentID, http.StatusBadRequest, "invalid_intent_id"},
	{ledger.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{commission.ErrUnknownCategory, http.StatusBadRequest, "unknown_category"},
	{commission.ErrInvalidPrice, http.StatusBadRequest, "invalid_price"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{store.ErrConflict, http.StatusConflict, "conflict"},
	{circuitbreaker.ErrCircuitOpen, http.StatusServiceUnavailable, "service_unavailable"},
	{ledger.ErrProcessorUnavailable, http.StatusBadGateway, "processor_unavailable"},
}

// respondError writes the JSON error body for err. Unknown errors are logged
// and reported as a generic 500 without detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": m.err.Error(), "code": m.code})
			return
		}
	}

	_ = c.Error(err)
	logger.Error("Request failed",
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal_error"})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_request"})
}
