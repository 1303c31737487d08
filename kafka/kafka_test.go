package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-svc/ledger"
	"marketplace-svc/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublisher_SendsKeyedEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "pi_0123456789abcdef0123456789abcdef" {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != "payment_events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		value, _ := msg.Value.Encode()
		var event models.PaymentEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.EventType != ledger.EventPaymentSucceeded {
			return errors.New("unexpected event type " + event.EventType)
		}
		return nil
	})

	p := NewPublisher(producer, "payment_events", zaptest.NewLogger(t))
	err := p.Publish(context.Background(), models.PaymentEvent{
		EventType:       ledger.EventPaymentSucceeded,
		PaymentIntentID: "pi_0123456789abcdef0123456789abcdef",
		Status:          models.IntentStatusSucceeded,
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublisher_ReturnsSendError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisher(producer, "payment_events", zaptest.NewLogger(t))
	err := p.Publish(context.Background(), models.PaymentEvent{PaymentIntentID: "pi_x"})
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, p.Close())
}

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafkago.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeReporter struct {
	mu       sync.Mutex
	failures int
	reports  []models.ProcessorReport
}

func (f *fakeReporter) Report(_ context.Context, id string, status models.IntentStatus, ref string) (models.ConfirmationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !status.Terminal() {
		return models.ConfirmationResult{}, ledger.ErrInvalidStatus
	}
	if f.failures > 0 {
		f.failures--
		return models.ConfirmationResult{}, errors.New("store unavailable")
	}
	f.reports = append(f.reports, models.ProcessorReport{PaymentIntentID: id, Status: status, ProcessorRef: ref})
	return models.ConfirmationResult{Success: status == models.IntentStatusSucceeded, Status: status, ID: id}, nil
}

func reportMessage(t *testing.T, offset int64, report models.ProcessorReport) kafkago.Message {
	value, err := json.Marshal(report)
	require.NoError(t, err)
	return kafkago.Message{Offset: offset, Value: value}
}

func runConsumer(t *testing.T, reader *fakeReader, reporter *fakeReporter, wantCommits int) {
	c := &ReportConsumer{reader: reader, reporter: reporter, logger: zaptest.NewLogger(t), backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(reader.commits()) == wantCommits }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestReportConsumer_AppliesReports(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		reportMessage(t, 1, models.ProcessorReport{PaymentIntentID: "pi_a", Status: models.IntentStatusSucceeded, ProcessorRef: "ch_1"}),
		reportMessage(t, 2, models.ProcessorReport{PaymentIntentID: "pi_b", Status: models.IntentStatusFailed}),
	}}
	reporter := &fakeReporter{}

	runConsumer(t, reader, reporter, 2)

	assert.Equal(t, []int64{1, 2}, reader.commits())
	require.Len(t, reporter.reports, 2)
	assert.Equal(t, "ch_1", reporter.reports[0].ProcessorRef)
}

func TestReportConsumer_SkipsInvalidMessages(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		{Offset: 1, Value: []byte("not json")},
		reportMessage(t, 2, models.ProcessorReport{PaymentIntentID: "pi_a", Status: models.IntentStatusRequiresPaymentMethod}),
		reportMessage(t, 3, models.ProcessorReport{PaymentIntentID: "pi_b", Status: models.IntentStatusSucceeded}),
	}}
	reporter := &fakeReporter{}

	runConsumer(t, reader, reporter, 3)

	require.Len(t, reporter.reports, 1)
	assert.Equal(t, "pi_b", reporter.reports[0].PaymentIntentID)
}

func TestReportConsumer_RetriesTransientErrors(t *testing.T) {
	reader := &fakeReader{messages: []kafkago.Message{
		reportMessage(t, 1, models.ProcessorReport{PaymentIntentID: "pi_a", Status: models.IntentStatusSucceeded}),
	}}
	reporter := &fakeReporter{failures: 2}

	runConsumer(t, reader, reporter, 1)

	require.Len(t, reporter.reports, 1)
}

func TestKafkaHeaderCarrier(t *testing.T) {
	c := kafkaHeaderCarrier{{Key: "traceparent", Value: []byte("00-abc-def-01")}}

	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
