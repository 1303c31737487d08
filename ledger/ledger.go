// Package ledger tracks payment intents through their lifecycle:
//
//	requires_payment_method -> succeeded
//	requires_payment_method -> failed
//
// Terminal states are final. A confirmation of a terminal intent replays the
// stored outcome without contacting the processor.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"marketplace-svc/idgen"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrUnsupportedCurrency  = errors.New("currency must be one of usd, eur, gbp")
	ErrInvalidIntentID      = errors.New("invalid payment intent id")
	ErrInvalidStatus        = errors.New("status must be succeeded or failed")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
)

const (
	EventIntentCreated    = "payment_intent_created"
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
)

var intentIDPattern = regexp.MustCompile(`^pi_[0-9a-f]{32}$`)

// Outcome is what a processor reports for one confirmation attempt. A
// requires_payment_method status means the processor has not decided yet.
type Outcome struct {
	Status models.IntentStatus
	Ref    string
}

type Processor interface {
	Process(ctx context.Context, intent models.PaymentIntent, paymentMethod string) (Outcome, error)
}

type Publisher interface {
	Publish(ctx context.Context, event models.PaymentEvent) error
}

// FreshReader is implemented by caching intent stores. Confirm and Report
// read through it so their decision is made on the stored status.
type FreshReader interface {
	GetIntentFresh(ctx context.Context, id string) (*models.PaymentIntent, error)
}

type Ledger struct {
	store     store.IntentStore
	processor Processor
	publisher Publisher
	logger    *zap.Logger
	locks     *keyLock
	now       func() time.Time
}

// New builds a ledger. publisher may be nil when no event bus is configured.
func New(st store.IntentStore, processor Processor, publisher Publisher, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:     st,
		processor: processor,
		publisher: publisher,
		logger:    logger,
		locks:     newKeyLock(),
		now:       time.Now,
	}
}

func tracer() trace.Tracer {
	return otel.Tracer("marketplace-service")
}

func (l *Ledger) Create(ctx context.Context, amount, currency string) (*models.PaymentIntent, error) {
	ctx, span := tracer().Start(ctx, "Ledger.Create")
	defer span.End()

	minor, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	cur, ok := models.ParseCurrency(currency)
	if !ok {
		return nil, ErrUnsupportedCurrency
	}

	id := idgen.IntentID()
	secret, err := idgen.ClientSecret(id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := l.now().UTC()
	intent := &models.PaymentIntent{
		ID:               id,
		ClientSecret:     secret,
		AmountMinorUnits: minor,
		Currency:         cur,
		Status:           models.IntentStatusRequiresPaymentMethod,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.store.CreateIntent(ctx, intent); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}

	span.SetAttributes(
		attribute.String("payment_intent.id", id),
		attribute.Int64("payment_intent.amount", minor),
		attribute.String("payment_intent.currency", string(cur)),
	)
	middleware.RecordIntentCreated(string(cur))

	l.logger.Info("Payment intent created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("payment_intent_id", id),
		zap.Int64("amount", minor),
		zap.String("currency", string(cur)),
	)
	l.publish(ctx, EventIntentCreated, intent)

	return intent, nil
}

// Get looks an intent up. Unknown and malformed ids are indistinguishable to
// the caller.
func (l *Ledger) Get(ctx context.Context, id string) (*models.PaymentIntent, error) {
	return l.lookup(ctx, id, l.store.GetIntent)
}

// current loads the intent a state change is decided on, skipping any cache.
func (l *Ledger) current(ctx context.Context, id string) (*models.PaymentIntent, error) {
	if fr, ok := l.store.(FreshReader); ok {
		return l.lookup(ctx, id, fr.GetIntentFresh)
	}
	return l.lookup(ctx, id, l.store.GetIntent)
}

func (l *Ledger) lookup(ctx context.Context, id string, read func(context.Context, string) (*models.PaymentIntent, error)) (*models.PaymentIntent, error) {
	if !intentIDPattern.MatchString(id) {
		return nil, ErrInvalidIntentID
	}
	intent, err := read(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidIntentID
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment intent: %w", err)
	}
	return intent, nil
}

// Confirm asks the processor to settle the intent and records its outcome.
func (l *Ledger) Confirm(ctx context.Context, id, paymentMethod string) (models.ConfirmationResult, error) {
	ctx, span := tracer().Start(ctx, "Ledger.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("payment_intent.id", id))

	unlock := l.locks.Lock(id)
	defer unlock()

	intent, err := l.current(ctx, id)
	if err != nil {
		return models.ConfirmationResult{}, err
	}
	if intent.Status.Terminal() {
		span.SetAttributes(attribute.Bool("payment_intent.replay", true))
		return result(intent), nil
	}

	outcome, err := l.processor.Process(ctx, *intent, paymentMethod)
	if err != nil {
		span.RecordError(err)
		l.logger.Warn("Payment processor call failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("payment_intent_id", id),
			zap.Error(err),
		)
		return models.ConfirmationResult{}, fmt.Errorf("%w: %w", ErrProcessorUnavailable, err)
	}
	if !outcome.Status.Terminal() {
		span.SetAttributes(attribute.Bool("payment_intent.pending", true))
		return result(intent), nil
	}

	return l.transition(ctx, span, intent, outcome)
}

// Report records an outcome that the processor delivered asynchronously.
func (l *Ledger) Report(ctx context.Context, id string, status models.IntentStatus, ref string) (models.ConfirmationResult, error) {
	ctx, span := tracer().Start(ctx, "Ledger.Report")
	defer span.End()
	span.SetAttributes(attribute.String("payment_intent.id", id))

	if !status.Terminal() {
		return models.ConfirmationResult{}, ErrInvalidStatus
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	intent, err := l.current(ctx, id)
	if err != nil {
		return models.ConfirmationResult{}, err
	}
	if intent.Status.Terminal() {
		span.SetAttributes(attribute.Bool("payment_intent.replay", true))
		return result(intent), nil
	}

	return l.transition(ctx, span, intent, Outcome{Status: status, Ref: ref})
}

func (l *Ledger) transition(ctx context.Context, span trace.Span, intent *models.PaymentIntent, outcome Outcome) (models.ConfirmationResult, error) {
	updated, err := l.store.TransitionIntent(ctx, intent.ID, models.IntentStatusRequiresPaymentMethod, outcome.Status, outcome.Ref)
	if errors.Is(err, store.ErrStatusConflict) {
		// another replica settled it first; its outcome stands
		span.SetAttributes(attribute.Bool("payment_intent.replay", true))
		return result(updated), nil
	}
	if err != nil {
		span.RecordError(err)
		return models.ConfirmationResult{}, fmt.Errorf("failed to update payment intent: %w", err)
	}

	span.SetAttributes(attribute.String("payment_intent.status", string(updated.Status)))
	middleware.RecordConfirmation(string(updated.Status))

	l.logger.Info("Payment intent settled",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("payment_intent_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.String("processor_ref", updated.ProcessorRef),
	)

	eventType := EventPaymentFailed
	if updated.Status == models.IntentStatusSucceeded {
		eventType = EventPaymentSucceeded
	}
	l.publish(ctx, eventType, updated)

	return result(updated), nil
}

func result(intent *models.PaymentIntent) models.ConfirmationResult {
	return models.ConfirmationResult{
		Success: intent.Status == models.IntentStatusSucceeded,
		Status:  intent.Status,
		ID:      intent.ID,
	}
}

// publish is best effort: the intent is already stored.
func (l *Ledger) publish(ctx context.Context, eventType string, intent *models.PaymentIntent) {
	if l.publisher == nil {
		return
	}
	event := models.PaymentEvent{
		EventType:        eventType,
		PaymentIntentID:  intent.ID,
		AmountMinorUnits: intent.AmountMinorUnits,
		Currency:         intent.Currency,
		Status:           intent.Status,
		ProcessorRef:     intent.ProcessorRef,
		OccurredAt:       l.now().UTC(),
	}
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Error("Failed to publish payment event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_type", eventType),
			zap.String("payment_intent_id", intent.ID),
			zap.Error(err),
		)
	}
}
