package handlers

import (
	"net/http"

	"marketplace-svc/ledger"
	"marketplace-svc/middleware"
	"marketplace-svc/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

func NewPaymentHandler(l *ledger.Ledger, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{ledger: l, logger: logger}
}

func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service").Start(c.Request.Context(), "CreatePaymentIntent")
	defer span.End()

	var req models.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	intent, err := h.ledger.Create(ctx, req.AmountText(), req.Currency)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	span.SetAttributes(attribute.String("payment_intent.id", intent.ID))
	c.JSON(http.StatusOK, models.CreateIntentResponse{
		ClientSecret: intent.ClientSecret,
		ID:           intent.ID,
		Amount:       intent.AmountMinorUnits,
		Currency:     intent.Currency,
		Status:       intent.Status,
		Created:      intent.CreatedAt.UnixMilli(),
	})
}

func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service").Start(c.Request.Context(), "ConfirmPayment")
	defer span.End()

	var req models.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	span.SetAttributes(attribute.String("payment_intent.id", req.PaymentIntentID))

	res, err := h.ledger.Confirm(ctx, req.PaymentIntentID, req.PaymentMethod)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Payment confirmation handled",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("payment_intent_id", res.ID),
		zap.String("status", string(res.Status)),
	)
	c.JSON(http.StatusOK, res)
}

// GetPaymentIntent never returns the client secret.
func (h *PaymentHandler) GetPaymentIntent(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service").Start(c.Request.Context(), "GetPaymentIntent")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("payment_intent.id", id))

	intent, err := h.ledger.Get(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	intent.ClientSecret = ""
	c.JSON(http.StatusOK, intent)
}
