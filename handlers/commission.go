package handlers

import (
	"net/http"

	"marketplace-svc/commission"
	"marketplace-svc/middleware"
	"marketplace-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CommissionHandler struct {
	calc   *commission.Calculator
	logger *zap.Logger
}

func NewCommissionHandler(calc *commission.Calculator, logger *zap.Logger) *CommissionHandler {
	return &CommissionHandler{calc: calc, logger: logger}
}

func (h *CommissionHandler) CalculateCommission(c *gin.Context) {
	var req models.CalculateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if req.Price == nil {
		respondError(c, h.logger, commission.ErrInvalidPrice)
		return
	}

	split, err := h.calc.CommissionFor(*req.Price, req.Category)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	middleware.RecordCommissionCalculation(split.Category)
	c.JSON(http.StatusOK, models.CommissionResponse{
		Price:          split.Price,
		Category:       split.Category,
		CommissionRate: split.Rate,
		Commission:     split.Commission,
		SellerAmount:   split.SellerAmount,
	})
}

func (h *CommissionHandler) GetRates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rates": h.calc.Rates()})
}
