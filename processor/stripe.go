package processor

import (
	"context"
	"errors"

	"marketplace-svc/ledger"
	"marketplace-svc/models"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// Stripe confirms the intent as a Stripe PaymentIntent. Requests carry an
// idempotency key derived from the intent and payment method, so a retried
// confirmation never charges twice.
type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string) *Stripe {
	return &Stripe{api: client.New(secretKey, nil)}
}

func newStripeWithBackends(secretKey string, backends *stripe.Backends) *Stripe {
	return &Stripe{api: client.New(secretKey, backends)}
}

func (s *Stripe) Process(ctx context.Context, intent models.PaymentIntent, paymentMethod string) (ledger.Outcome, error) {
	if paymentMethod == "" {
		return ledger.Outcome{Status: models.IntentStatusRequiresPaymentMethod}, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(intent.AmountMinorUnits),
		Currency:           stripe.String(string(intent.Currency)),
		PaymentMethod:      stripe.String(paymentMethod),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey(intent.ID, paymentMethod))
	params.AddMetadata("payment_intent_id", intent.ID)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			ref := string(stripeErr.Code)
			if stripeErr.PaymentIntent != nil {
				ref = stripeErr.PaymentIntent.ID
			}
			return ledger.Outcome{Status: models.IntentStatusFailed, Ref: ref}, nil
		}
		return ledger.Outcome{}, err
	}

	return ledger.Outcome{Status: stripeStatus(pi.Status), Ref: pi.ID}, nil
}

func stripeStatus(s stripe.PaymentIntentStatus) models.IntentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return models.IntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return models.IntentStatusFailed
	}
	// processing, requires_action and the like settle later through the
	// report consumer
	return models.IntentStatusRequiresPaymentMethod
}
