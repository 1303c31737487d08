package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"marketplace-svc/ledger"
	"marketplace-svc/models"
	"marketplace-svc/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupCacheTest(t *testing.T) (*IntentStore, *store.Memory, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	mem := store.NewMemory()
	return NewIntentStore(mem, rdb, time.Minute, zaptest.NewLogger(t)), mem, mr
}

func newIntent(id string) *models.PaymentIntent {
	now := time.Now().UTC()
	return &models.PaymentIntent{
		ID:               id,
		ClientSecret:     id + "_secret_x",
		AmountMinorUnits: 1000,
		Currency:         models.CurrencyUSD,
		Status:           models.IntentStatusRequiresPaymentMethod,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestIntentStore_ReadThrough(t *testing.T) {
	s, _, mr := setupCacheTest(t)
	ctx := context.Background()

	intent := newIntent("pi_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, s.CreateIntent(ctx, intent))
	assert.False(t, mr.Exists(intentKey(intent.ID)))

	got, err := s.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, got.ID)
	assert.True(t, mr.Exists(intentKey(intent.ID)))
	assert.Equal(t, time.Minute, mr.TTL(intentKey(intent.ID)))
}

func TestIntentStore_TransitionInvalidates(t *testing.T) {
	s, _, mr := setupCacheTest(t)
	ctx := context.Background()

	intent := newIntent("pi_bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, s.CreateIntent(ctx, intent))
	_, err := s.GetIntent(ctx, intent.ID)
	require.NoError(t, err)

	_, err = s.TransitionIntent(ctx, intent.ID, models.IntentStatusRequiresPaymentMethod, models.IntentStatusSucceeded, "ch_1")
	require.NoError(t, err)
	assert.False(t, mr.Exists(intentKey(intent.ID)))

	got, err := s.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusSucceeded, got.Status)
}

func TestIntentStore_NotFoundIsNotCached(t *testing.T) {
	s, _, mr := setupCacheTest(t)

	_, err := s.GetIntent(context.Background(), "pi_cccccccccccccccccccccccccccccccc")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.False(t, mr.Exists(intentKey("pi_cccccccccccccccccccccccccccccccc")))
}

func TestIntentStore_FallsBackWhenRedisIsDown(t *testing.T) {
	s, _, mr := setupCacheTest(t)
	ctx := context.Background()

	intent := newIntent("pi_dddddddddddddddddddddddddddddddd")
	require.NoError(t, s.CreateIntent(ctx, intent))
	mr.Close()

	got, err := s.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, got.ID)
}

func TestIntentStore_GetIntentFresh(t *testing.T) {
	s, mem, mr := setupCacheTest(t)
	ctx := context.Background()

	intent := newIntent("pi_eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	require.NoError(t, s.CreateIntent(ctx, intent))
	_, err := s.GetIntent(ctx, intent.ID)
	require.NoError(t, err)

	// settled behind the cache's back
	_, err = mem.TransitionIntent(ctx, intent.ID, models.IntentStatusRequiresPaymentMethod, models.IntentStatusFailed, "ch_1")
	require.NoError(t, err)

	got, err := s.GetIntentFresh(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusFailed, got.Status)

	got, err = s.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusFailed, got.Status)
	assert.True(t, mr.Exists(intentKey(intent.ID)))
}

// stallingStore parks the first armed GetIntent after it has read the
// record, so a transition can land before the caller caches the result.
type stallingStore struct {
	*store.Memory
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func (s *stallingStore) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	intent, err := s.Memory.GetIntent(ctx, id)
	if s.armed.CompareAndSwap(true, false) {
		close(s.reached)
		<-s.release
	}
	return intent, err
}

type countingProcessor struct {
	calls int32
}

func (p *countingProcessor) Process(context.Context, models.PaymentIntent, string) (ledger.Outcome, error) {
	atomic.AddInt32(&p.calls, 1)
	return ledger.Outcome{Status: models.IntentStatusSucceeded, Ref: "ch_1"}, nil
}

func TestIntentStore_RacingReadDoesNotReopenSettledIntent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := zaptest.NewLogger(t)

	backing := &stallingStore{
		Memory:  store.NewMemory(),
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
	cached := NewIntentStore(backing, rdb, time.Minute, logger)
	proc := &countingProcessor{}
	l := ledger.New(cached, proc, nil, logger)
	ctx := context.Background()

	intent, err := l.Create(ctx, "25", "usd")
	require.NoError(t, err)

	backing.armed.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Get(ctx, intent.ID)
	}()
	<-backing.reached

	res, err := l.Confirm(ctx, intent.ID, "pm_card_visa")
	require.NoError(t, err)
	assert.True(t, res.Success)

	close(backing.release)
	<-done

	// the racing GET wrote the pre-transition copy back
	stale, err := cached.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusRequiresPaymentMethod, stale.Status)

	res, err = l.Confirm(ctx, intent.ID, "pm_card_visa")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.IntentStatusSucceeded, res.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&proc.calls))

	got, err := cached.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusSucceeded, got.Status)
}
