package processor

import (
	"context"
	"errors"

	"marketplace-svc/circuitbreaker"
	"marketplace-svc/ledger"
	"marketplace-svc/middleware"
	"marketplace-svc/models"

	"go.uber.org/zap"
)

// Breaker counts processor transport errors; declines are outcomes, not
// errors, and never trip it.
type Breaker struct {
	next   ledger.Processor
	cb     *circuitbreaker.CircuitBreaker
	logger *zap.Logger
}

func WithBreaker(next ledger.Processor, cb *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Breaker {
	return &Breaker{next: next, cb: cb, logger: logger}
}

func (b *Breaker) Process(ctx context.Context, intent models.PaymentIntent, paymentMethod string) (ledger.Outcome, error) {
	var out ledger.Outcome
	err := b.cb.Execute(ctx, func() error {
		var err error
		out, err = b.next.Process(ctx, intent, paymentMethod)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		b.logger.Warn("Payment processor circuit is open",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("payment_intent_id", intent.ID),
		)
	}
	return out, err
}

func (b *Breaker) State() circuitbreaker.State {
	return b.cb.GetState()
}
