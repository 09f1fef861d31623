package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRowSource struct {
	mock.Mock
}

func (m *mockRowSource) LoadSnapshotRows(ctx context.Context, productID string) (*SnapshotRows, error) {
	args := m.Called(ctx, productID)
	rows, _ := args.Get(0).(*SnapshotRows)
	return rows, args.Error(1)
}

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	readErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, false, c.readErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func sampleRows() *SnapshotRows {
	return &SnapshotRows{
		ProductID: "p1",
		Rules:     []ShippingRuleModel{{ID: "r1", ProductID: "p1", Mode: "flat", FlatAmount: strPtr("200"), Enabled: true}},
	}
}

func TestCachedRowSource_MissThenHit(t *testing.T) {
	db := new(mockRowSource)
	db.On("LoadSnapshotRows", mock.Anything, "p1").Return(sampleRows(), nil).Once()
	cache := newMemoryCache()
	src := NewCachedRowSource(db, cache, time.Minute)

	first, err := src.LoadSnapshotRows(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, first.Rules, 1)
	assert.Contains(t, cache.data, "shipping:snapshot:p1")

	second, err := src.LoadSnapshotRows(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, first.Rules[0].ID, second.Rules[0].ID)

	db.AssertExpectations(t)
}

func TestCachedRowSource_CacheErrorFallsThrough(t *testing.T) {
	db := new(mockRowSource)
	db.On("LoadSnapshotRows", mock.Anything, "p1").Return(sampleRows(), nil).Twice()
	cache := newMemoryCache()
	cache.readErr = errors.New("redis down")
	src := NewCachedRowSource(db, cache, time.Minute)

	for i := 0; i < 2; i++ {
		rows, err := src.LoadSnapshotRows(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, "p1", rows.ProductID)
	}
	db.AssertExpectations(t)
}

func TestCachedRowSource_CorruptedEntryIgnored(t *testing.T) {
	db := new(mockRowSource)
	db.On("LoadSnapshotRows", mock.Anything, "p1").Return(sampleRows(), nil).Once()
	cache := newMemoryCache()
	cache.data["shipping:snapshot:p1"] = []byte("{not json")
	src := NewCachedRowSource(db, cache, time.Minute)

	rows, err := src.LoadSnapshotRows(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, rows.Rules, 1)

	var cached SnapshotRows
	require.NoError(t, json.Unmarshal(cache.data["shipping:snapshot:p1"], &cached))
	assert.Equal(t, "r1", cached.Rules[0].ID)
}

func TestCachedRowSource_StoreErrorNotCached(t *testing.T) {
	db := new(mockRowSource)
	db.On("LoadSnapshotRows", mock.Anything, "p1").Return(nil, errors.New("connection refused")).Once()
	cache := newMemoryCache()
	src := NewCachedRowSource(db, cache, time.Minute)

	_, err := src.LoadSnapshotRows(context.Background(), "p1")
	require.Error(t, err)
	assert.Empty(t, cache.data)
}

func TestCachedRowSource_Invalidate(t *testing.T) {
	db := new(mockRowSource)
	db.On("LoadSnapshotRows", mock.Anything, "p1").Return(sampleRows(), nil).Twice()
	cache := newMemoryCache()
	src := NewCachedRowSource(db, cache, time.Minute)

	_, err := src.LoadSnapshotRows(context.Background(), "p1")
	require.NoError(t, err)
	require.NoError(t, src.Invalidate(context.Background(), "p1"))
	assert.NotContains(t, cache.data, "shipping:snapshot:p1")

	_, err = src.LoadSnapshotRows(context.Background(), "p1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSnapshotRepository_MapsRows(t *testing.T) {
	db := new(mockRowSource)
	rows := sampleRows()
	rows.Settings = &ShippingSettingsModel{ProductID: "p1", FallbackMode: strPtr("free")}
	db.On("LoadSnapshotRows", mock.Anything, "p1").Return(rows, nil)

	snapshot, err := NewSnapshotRepository(db).LoadSnapshot(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, snapshot.Rules, 1)
	assert.Equal(t, "r1", snapshot.Rules[0].ID)
	require.NotNil(t, snapshot.Settings)
	assert.Equal(t, "free", string(snapshot.Settings.Fallback.Mode()))
}

// blockingRowSource 在 release 关闭前一直阻塞，然后像数据库驱动一样返回 ctx 的错误。
type blockingRowSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRowSource) LoadSnapshotRows(ctx context.Context, productID string) (*SnapshotRows, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sampleRows(), nil
}

func TestCachedRowSource_CallerCancelDoesNotFailWaiters(t *testing.T) {
	db := &blockingRowSource{started: make(chan struct{}), release: make(chan struct{})}
	src := NewCachedRowSource(db, newMemoryCache(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := src.LoadSnapshotRows(ctx, "p1")
		firstErr <- err
	}()
	<-db.started

	type result struct {
		rows *SnapshotRows
		err  error
	}
	second := make(chan result, 1)
	go func() {
		rows, err := src.LoadSnapshotRows(context.Background(), "p1")
		second <- result{rows, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(db.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "p1", res.rows.ProductID)
}
