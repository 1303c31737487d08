package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-svc/config"
	"marketplace-svc/ledger"
	"marketplace-svc/middleware"
	"marketplace-svc/models"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxAttempts = 3

// Reporter is the part of the ledger the report consumer drives.
type Reporter interface {
	Report(ctx context.Context, id string, status models.IntentStatus, ref string) (models.ConfirmationResult, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ReportConsumer applies asynchronous processor outcomes to the ledger. It
// reads as part of a consumer group and commits a message only after it was
// applied or judged unprocessable.
type ReportConsumer struct {
	reader   messageReader
	reporter Reporter
	logger   *zap.Logger
	backoff  time.Duration
}

func NewReportConsumer(cfg config.KafkaConfig, reporter Reporter, logger *zap.Logger) *ReportConsumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.ReportsTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	logger.Info("Kafka report consumer initialized",
		zap.String("topic", cfg.ReportsTopic),
		zap.String("group_id", cfg.GroupID),
	)
	return &ReportConsumer{reader: reader, reporter: reporter, logger: logger, backoff: time.Second}
}

// Run blocks until ctx is canceled.
func (c *ReportConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Kafka consumer error", zap.Error(err))
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.handleWithRetry(ctx, msg); err != nil {
			c.logger.Error("Failed to handle processor report after retries",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("Failed to commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *ReportConsumer) Close() error {
	return c.reader.Close()
}

// errSkip marks a message that will never succeed, so retrying is pointless.
var errSkip = errors.New("unprocessable report")

func (c *ReportConsumer) handleWithRetry(ctx context.Context, msg kafkago.Message) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := c.handleMessage(ctx, msg)
		if err == nil || errors.Is(err, errSkip) {
			return err
		}
		lastErr = err
		if attempt < maxAttempts {
			backoff := time.Duration(attempt) * c.backoff
			c.logger.Warn("Retrying processor report",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *ReportConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	// Extract trace context from Kafka message headers
	ctx = otel.GetTextMapPropagator().Extract(ctx, kafkaHeaderCarrier(msg.Headers))
	ctx, span := otel.Tracer("marketplace-service").Start(ctx, "HandleProcessorReport")
	defer span.End()

	var report models.ProcessorReport
	if err := json.Unmarshal(msg.Value, &report); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", errSkip, err)
	}
	span.SetAttributes(
		attribute.String("payment_intent.id", report.PaymentIntentID),
		attribute.String("payment_intent.status", string(report.Status)),
	)

	res, err := c.reporter.Report(ctx, report.PaymentIntentID, report.Status, report.ProcessorRef)
	if errors.Is(err, ledger.ErrInvalidIntentID) || errors.Is(err, ledger.ErrInvalidStatus) {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", errSkip, err)
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	c.logger.Info("Processor report applied",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("payment_intent_id", res.ID),
		zap.String("status", string(res.Status)),
	)
	return nil
}

// kafkaHeaderCarrier implements propagation.TextMapCarrier over kafka-go headers.
type kafkaHeaderCarrier []kafkago.Header

func (c kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set is unused on the consuming side.
func (c kafkaHeaderCarrier) Set(string, string) {}

func (c kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}
