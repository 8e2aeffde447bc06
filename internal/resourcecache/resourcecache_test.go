package resourcecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := db.New(db.Config{Driver: "sqlite", DSN: "file::memory:?cache=shared&_pragma=foreign_keys(1)", Logger: zap.NewNop()})
	require.NoError(t, err)
	return store.New(gdb, zap.NewNop())
}

func TestHasResourceDataFillsFromStoreOnMiss(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cust := &db.Customer{Active: true}
	require.NoError(t, st.DB().Create(cust).Error)
	require.NoError(t, st.Resources.Insert(ctx, "t", &db.Resource{CustomerID: cust.ID, ValueType: 3, Timestamp1: 100, Value: 1.0}))

	c, err := New(Config{}, st, zap.NewNop())
	require.NoError(t, err)

	has, err := c.HasResourceData(ctx, "t", cust.ID, 3)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = c.HasResourceData(ctx, "t", cust.ID, 4)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRecordResourceUpdatesCacheInPlace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cust := &db.Customer{Active: true}
	require.NoError(t, st.DB().Create(cust).Error)

	c, err := New(Config{}, st, zap.NewNop())
	require.NoError(t, err)

	_, err = c.HasResourceData(ctx, "t", cust.ID, 0)
	require.NoError(t, err)

	c.RecordResource(ctx, "t", cust.ID, 9)

	has, err := c.HasResourceData(ctx, "t", cust.ID, 9)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPurgeEvictsAffectedCustomer(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cust := &db.Customer{Active: true}
	require.NoError(t, st.DB().Create(cust).Error)
	require.NoError(t, st.Resources.Insert(ctx, "t", &db.Resource{CustomerID: cust.ID, ValueType: 1, Timestamp1: 1, Value: 1.0}))

	c, err := New(Config{MaxAge: 1}, st, zap.NewNop())
	require.NoError(t, err)

	_, err = c.HasResourceData(ctx, "t", cust.ID, 1)
	require.NoError(t, err)

	c.purgeOnce(ctx, "t")

	c.mu.Lock()
	_, cached := c.cache.Get(cust.ID)
	c.mu.Unlock()
	assert.False(t, cached)
}
