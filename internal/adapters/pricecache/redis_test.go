package pricecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockStore struct {
	values  map[string]string
	getErr  error
	setErr  error
	gets    int
	sets    int
	lastTTL time.Duration
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.gets++
	if m.getErr != nil {
		return "", m.getErr
	}
	val, ok := m.values[key]
	if !ok {
		return "", errCacheMiss
	}
	return val, nil
}

func (m *mockStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.sets++
	m.lastTTL = ttl
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

type mockOracle struct {
	price float64
	err   error
	calls int
}

func (m *mockOracle) GetPrice(ctx context.Context, pair string) (float64, error) {
	m.calls++
	return m.price, m.err
}

func TestGetPrice_CacheHitSkipsOracle(t *testing.T) {
	oracle := &mockOracle{price: 999}
	store := &mockStore{values: map[string]string{"price:SOL/USDC": "150.25"}}
	cache, err := newWithStore(oracle, store, time.Second, nopLogger{})
	require.NoError(t, err)

	price, err := cache.GetPrice(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 150.25, price)
	assert.Equal(t, 0, oracle.calls)
}

func TestGetPrice_MissFillsCache(t *testing.T) {
	oracle := &mockOracle{price: 42.5}
	store := &mockStore{}
	cache, err := newWithStore(oracle, store, 5*time.Second, nopLogger{})
	require.NoError(t, err)

	price, err := cache.GetPrice(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 42.5, price)
	assert.Equal(t, 1, oracle.calls)
	assert.Equal(t, "42.5", store.values["price:SOL/USDC"])
	assert.Equal(t, 5*time.Second, store.lastTTL)

	// Second lookup is served from the cache.
	price, err = cache.GetPrice(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 42.5, price)
	assert.Equal(t, 1, oracle.calls)
}

func TestGetPrice_ZeroPriceNotCached(t *testing.T) {
	oracle := &mockOracle{price: 0}
	store := &mockStore{}
	cache, err := newWithStore(oracle, store, time.Second, nopLogger{})
	require.NoError(t, err)

	price, err := cache.GetPrice(context.Background(), "UNKNOWN/USDC")
	require.NoError(t, err)
	assert.Equal(t, 0.0, price)
	assert.Equal(t, 0, store.sets)
}

func TestGetPrice_StoreFailureFallsThrough(t *testing.T) {
	oracle := &mockOracle{price: 12.0}
	store := &mockStore{getErr: errors.New("connection refused"), setErr: errors.New("connection refused")}
	cache, err := newWithStore(oracle, store, time.Second, nopLogger{})
	require.NoError(t, err)

	price, err := cache.GetPrice(context.Background(), "SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, 12.0, price)
	assert.Equal(t, 1, oracle.calls)
}

func TestGetPrice_OracleErrorPropagates(t *testing.T) {
	wantErr := errors.New("upstream down")
	oracle := &mockOracle{err: wantErr}
	cache, err := newWithStore(oracle, &mockStore{}, time.Second, nopLogger{})
	require.NoError(t, err)

	_, err = cache.GetPrice(context.Background(), "SOL/USDC")
	assert.ErrorIs(t, err, wantErr)
}
