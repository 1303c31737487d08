// Package processor holds the payment processor integrations the ledger can
// confirm intents against.
package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"marketplace-svc/circuitbreaker"
	"marketplace-svc/config"
	"marketplace-svc/ledger"

	"go.uber.org/zap"
)

// New returns the configured processor behind a circuit breaker.
func New(cfg config.ProcessorConfig, logger *zap.Logger) (ledger.Processor, error) {
	var p ledger.Processor
	switch cfg.Name {
	case "mock":
		m, err := NewMock(cfg.MockOutcome)
		if err != nil {
			return nil, err
		}
		p = m
	case "stripe":
		p = NewStripe(cfg.StripeSecretKey)
	case "omise":
		o, err := NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			return nil, err
		}
		p = o
	default:
		return nil, fmt.Errorf("unknown payment processor %q", cfg.Name)
	}

	logger.Info("Payment processor initialized", zap.String("processor", cfg.Name))
	return WithBreaker(p, circuitbreaker.NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout), logger), nil
}

// idempotencyKey is stable for one intent and payment method. A retried
// confirmation with the same method is deduplicated by the processor; one
// with a different method is a new attempt rather than a key mismatch.
func idempotencyKey(intentID, paymentMethod string) string {
	sum := sha256.Sum256([]byte(paymentMethod))
	return intentID + "_" + hex.EncodeToString(sum[:8])
}
