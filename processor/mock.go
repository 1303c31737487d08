package processor

import (
	"context"
	"fmt"
	"strings"

	"marketplace-svc/ledger"
	"marketplace-svc/models"
)

// Mock settles every intent with a fixed outcome. Payment methods that look
// like a decline ("pm_card_chargeDeclined", "tok_declined") always fail.
type Mock struct {
	outcome models.IntentStatus
}

func NewMock(outcome string) (*Mock, error) {
	switch outcome {
	case "succeeded":
		return &Mock{outcome: models.IntentStatusSucceeded}, nil
	case "failed":
		return &Mock{outcome: models.IntentStatusFailed}, nil
	case "pending":
		return &Mock{outcome: models.IntentStatusRequiresPaymentMethod}, nil
	}
	return nil, fmt.Errorf("unknown mock outcome %q", outcome)
}

func (m *Mock) Process(ctx context.Context, intent models.PaymentIntent, paymentMethod string) (ledger.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Outcome{}, err
	}

	status := m.outcome
	if strings.Contains(strings.ToLower(paymentMethod), "declin") {
		status = models.IntentStatusFailed
	}
	return ledger.Outcome{
		Status: status,
		Ref:    "mock_" + strings.TrimPrefix(intent.ID, "pi_"),
	}, nil
}
