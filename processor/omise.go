package processor

import (
	"context"
	"errors"
	"net/http"

	"marketplace-svc/ledger"
	"marketplace-svc/models"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// Omise charges the card token passed as the payment method.
type Omise struct {
	charge func(ctx context.Context, idempotencyKey string, ch *omise.Charge, op *operations.CreateCharge) error
}

// NewOmise checks the keys once. Each charge gets its own client because
// request headers and context are client state.
func NewOmise(publicKey, secretKey string) (*Omise, error) {
	if _, err := omise.NewClient(publicKey, secretKey); err != nil {
		return nil, err
	}
	return &Omise{
		charge: func(ctx context.Context, key string, ch *omise.Charge, op *operations.CreateCharge) error {
			c, err := omise.NewClient(publicKey, secretKey)
			if err != nil {
				return err
			}
			c.SetDebug(false)
			c.WithContext(ctx)
			c.WithCustomHeaders(map[string]string{"Idempotency-Key": key})
			return c.Do(ch, op)
		},
	}, nil
}

func (o *Omise) Process(ctx context.Context, intent models.PaymentIntent, paymentMethod string) (ledger.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Outcome{}, err
	}
	if paymentMethod == "" {
		return ledger.Outcome{Status: models.IntentStatusRequiresPaymentMethod}, nil
	}

	ch := &omise.Charge{}
	err := o.charge(ctx, idempotencyKey(intent.ID, paymentMethod), ch, &operations.CreateCharge{
		Amount:   intent.AmountMinorUnits,
		Currency: string(intent.Currency),
		Card:     paymentMethod,
		Metadata: map[string]any{"payment_intent_id": intent.ID},
	})
	if err != nil {
		var apiErr *omise.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			return ledger.Outcome{Status: models.IntentStatusFailed, Ref: apiErr.Code}, nil
		}
		return ledger.Outcome{}, err
	}

	switch string(ch.Status) {
	case "successful":
		return ledger.Outcome{Status: models.IntentStatusSucceeded, Ref: ch.ID}, nil
	case "failed":
		return ledger.Outcome{Status: models.IntentStatusFailed, Ref: ch.ID}, nil
	}
	// pending and awaiting authorization arrive later as reports
	return ledger.Outcome{Status: models.IntentStatusRequiresPaymentMethod, Ref: ch.ID}, nil
}
