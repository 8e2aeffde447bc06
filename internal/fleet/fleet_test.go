package fleet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

type recordedPost struct {
	identifier string
	endpoint   string
	body       interface{}
}

type fakePoster struct {
	mu    sync.Mutex
	posts []recordedPost
}

func (f *fakePoster) PostJSON(identifier, endpoint string, v interface{}, _ string, callback func([]byte, error)) error {
	f.mu.Lock()
	f.posts = append(f.posts, recordedPost{identifier, endpoint, v})
	f.mu.Unlock()
	if callback != nil {
		callback(nil, nil)
	}
	return nil
}

func (f *fakePoster) PostEmpty(identifier, endpoint, _ string) {
	f.mu.Lock()
	f.posts = append(f.posts, recordedPost{identifier, endpoint, nil})
	f.mu.Unlock()
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := db.New(db.Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)", Logger: zap.NewNop()})
	require.NoError(t, err)
	return store.New(gdb, zap.NewNop())
}

func TestCreateServerPostsStateInactive(t *testing.T) {
	st := newTestStore(t)
	poster := &fakePoster{}
	f := New(st, poster, zap.NewNop())

	id, err := f.CreateServer(context.Background(), "t", 1, "worker-1.example.com", db.ServerInactive)
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.Len(t, poster.posts, 1)
	assert.Equal(t, "/state/inactive", poster.posts[0].endpoint)
}

func TestModifyServerRejectsWhenActive(t *testing.T) {
	st := newTestStore(t)
	f := New(st, &fakePoster{}, zap.NewNop())
	ctx := context.Background()

	id, err := f.CreateServer(ctx, "t", 1, "worker-1.example.com", db.ServerActive)
	require.NoError(t, err)

	err = f.ModifyServer(ctx, "t", id, 2, "worker-1-renamed.example.com")
	require.Error(t, err)
}

func TestChangeStatusToActiveRecomputesRegionIndex(t *testing.T) {
	st := newTestStore(t)
	poster := &fakePoster{}
	f := New(st, poster, zap.NewNop())
	ctx := context.Background()

	id, err := f.CreateServer(ctx, "t", 5, "worker-1.example.com", db.ServerInactive)
	require.NoError(t, err)

	require.NoError(t, f.ChangeStatus(ctx, "t", id, db.ServerActive))

	var found bool
	for _, p := range poster.posts {
		if p.endpoint == "/region/change" {
			found = true
			body := p.body.(regionChangeBody)
			assert.Equal(t, 0, body.RegionIndex)
			assert.Equal(t, 1, body.NumberRegions)
		}
	}
	assert.True(t, found)
}

func TestAssignSingleRegionPicksLowestCPU(t *testing.T) {
	st := newTestStore(t)
	f := New(st, &fakePoster{}, zap.NewNop())
	ctx := context.Background()

	id1, err := f.CreateServer(ctx, "t", 1, "worker-a.example.com", db.ServerActive)
	require.NoError(t, err)
	id2, err := f.CreateServer(ctx, "t", 1, "worker-b.example.com", db.ServerActive)
	require.NoError(t, err)

	require.NoError(t, st.Servers.SetCPULoad(ctx, "t", id1, 0.8))
	require.NoError(t, st.Servers.SetCPULoad(ctx, "t", id2, 0.1))
	f.loaded = false // force reload to pick up the new CPU loads

	members, removed, err := f.AssignSingleRegion(ctx, "t", nil)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, id2, members[0])
	assert.Empty(t, removed)
}

func TestActivateAssignsAndPostsCustomerAdd(t *testing.T) {
	st := newTestStore(t)
	poster := &fakePoster{}
	f := New(st, poster, zap.NewNop())
	ctx := context.Background()

	id, err := f.CreateServer(ctx, "t", 1, "worker-a.example.com", db.ServerActive)
	require.NoError(t, err)
	_ = id

	cust := &db.Customer{Active: true}
	require.NoError(t, st.DB().Create(cust).Error)

	require.NoError(t, f.Activate(ctx, cust.ID))

	var found bool
	for _, p := range poster.posts {
		if p.endpoint == "/customer/add" {
			found = true
		}
	}
	assert.True(t, found)

	mapping, err := st.Mappings.Get(ctx, "t", cust.ID)
	require.NoError(t, err)
	require.NotNil(t, mapping)
}

func TestDeactivateClearsMappingAndPostsRemove(t *testing.T) {
	st := newTestStore(t)
	poster := &fakePoster{}
	f := New(st, poster, zap.NewNop())
	ctx := context.Background()

	_, err := f.CreateServer(ctx, "t", 1, "worker-a.example.com", db.ServerActive)
	require.NoError(t, err)

	cust := &db.Customer{Active: true}
	require.NoError(t, st.DB().Create(cust).Error)
	require.NoError(t, f.Activate(ctx, cust.ID))

	require.NoError(t, f.Deactivate(ctx, cust.ID))

	mapping, err := st.Mappings.Get(ctx, "t", cust.ID)
	require.NoError(t, err)
	assert.Nil(t, mapping)

	var removeFound bool
	for _, p := range poster.posts {
		if p.endpoint == "/customer/remove" {
			removeFound = true
		}
	}
	assert.True(t, removeFound)
}
