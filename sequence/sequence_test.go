package sequence_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/types"
)

// counterStore is a minimal mutex-guarded sequence.Store.
type counterStore struct {
	mu       sync.Mutex
	values   map[sequence.Key]int64
	creates  int
	failWith error
}

func newCounterStore() *counterStore {
	return &counterStore{values: make(map[sequence.Key]int64)}
}

func (s *counterStore) IncrementSequence(_ context.Context, k sequence.Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	v, ok := s.values[k]
	if !ok {
		return 0, types.NotFound("sequence")
	}
	s.values[k] = v + 1
	return v + 1, nil
}

func (s *counterStore) CreateSequence(_ context.Context, k sequence.Key, seed int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	v, ok := s.values[k]
	if !ok {
		v = seed
	}
	s.values[k] = v + 1
	return v + 1, nil
}

func (s *counterStore) PeekSequence(_ context.Context, k sequence.Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[k], nil
}

func TestNextStartsAtOne(t *testing.T) {
	g := sequence.NewGenerator(newCounterStore(), nil)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := g.Next(ctx, sequence.DocBill, "2025-06-01")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestNextBootstrapsFromCensus(t *testing.T) {
	census := sequence.CensusFunc(func(_ context.Context, k sequence.Key) (int64, error) {
		if k.DocType == sequence.DocBill && k.Day == "2025-06-01" {
			return 17, nil
		}
		return 0, nil
	})
	g := sequence.NewGenerator(newCounterStore(), census)

	got, err := g.Next(context.Background(), sequence.DocBill, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, int64(18), got)

	other, err := g.Next(context.Background(), sequence.DocBill, "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestNextConcurrentDistinct(t *testing.T) {
	store := newCounterStore()
	g := sequence.NewGenerator(store, nil)

	const n = 200
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := g.Next(context.Background(), sequence.DocBill, "2025-06-01")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, v := range results {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestNextPropagatesStoreFailure(t *testing.T) {
	store := newCounterStore()
	store.failWith = errors.New("connection refused")
	g := sequence.NewGenerator(store, nil)

	_, err := g.Next(context.Background(), sequence.DocReceipt, "2025-06-01")
	require.Error(t, err)

	var ie *types.InfrastructureError
	assert.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.Equal(t, 0, store.creates)
}

func TestNextPropagatesCensusFailure(t *testing.T) {
	census := sequence.CensusFunc(func(context.Context, sequence.Key) (int64, error) {
		return 0, context.DeadlineExceeded
	})
	g := sequence.NewGenerator(newCounterStore(), census)

	_, err := g.Next(context.Background(), sequence.DocBill, "2025-06-01")
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNextValidatesKey(t *testing.T) {
	g := sequence.NewGenerator(newCounterStore(), nil)

	_, err := g.Next(context.Background(), "invoice", "2025-06-01")
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = g.Next(context.Background(), sequence.DocBill, "01/06/2025")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestNextNumberFormat(t *testing.T) {
	g := sequence.NewGenerator(newCounterStore(), nil)
	at := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)

	n, err := g.NextNumber(context.Background(), sequence.DocMasterBill, at)
	require.NoError(t, err)
	assert.Equal(t, "MBL-20250601-00001", n)

	v, err := g.Peek(context.Background(), sequence.DocMasterBill, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestKeyHelpers(t *testing.T) {
	k := sequence.KeyFor(sequence.DocAnomaly, time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, "anomaly:2025-01-02", k.String())
	assert.Equal(t, "ANM-20250102-", k.NumberPrefix())
	assert.Equal(t, "ANM-20250102-00042", sequence.Format(k, 42))
	assert.Len(t, sequence.DocTypes(), 6)
}
