package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/events"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/reconcile"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/resourcecache"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

type fakePoster struct{}

func (f *fakePoster) PostJSON(identifier, endpoint string, v interface{}, logText string, callback func([]byte, error)) error {
	if callback != nil {
		callback(nil, nil)
	}
	return nil
}

type fakeScheduler struct {
	enqueued []uint32
}

func (f *fakeScheduler) Enqueue(customerID uint32, deactivate bool) {
	f.enqueued = append(f.enqueued, customerID)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := db.New(db.Config{Driver: "sqlite", DSN: "file::memory:?cache=shared&_pragma=foreign_keys(1)", Logger: zap.NewNop()})
	require.NoError(t, err)
	return store.New(gdb, zap.NewNop())
}

func newTestRouter(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	cache, err := resourcecache.New(resourcecache.Config{}, st, zap.NewNop())
	require.NoError(t, err)
	rec := reconcile.New(st, &fakeScheduler{}, zap.NewNop())
	proc := events.New(events.Config{}, st, &fakePoster{}, zap.NewNop())

	h := NewRouter(RouterConfig{
		Store:      st,
		Reconciler: rec,
		Events:     proc,
		Resources:  cache,
		Logger:     zap.NewNop(),
	})
	return h, st
}

func seedCustomer(t *testing.T, st *store.Store) uint32 {
	t.Helper()
	cust := &db.Customer{Active: true}
	require.NoError(t, st.DB().WithContext(context.Background()).Create(cust).Error)
	return cust.ID
}

func httpRequestWithRawBody(t *testing.T, path, rawBody string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(rawBody))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
	}
	return rr, out
}
