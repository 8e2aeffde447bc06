package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceCreateAvailableList(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	rr, body := doJSON(t, h, http.MethodPost, "/resource/available", resourceAvailableRequest{CustomerID: customerID, ValueType: 5})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, false, body["available"])

	rr, body = doJSON(t, h, http.MethodPost, "/resource/create", resourceCreateRequest{
		CustomerID: customerID, ValueType: 5, Timestamp: 3700, Value: 42.5,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/resource/available", resourceAvailableRequest{CustomerID: customerID, ValueType: 5})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, body["available"])

	rr, body = doJSON(t, h, http.MethodPost, "/resource/list", resourceListRequest{
		CustomerID: customerID, ValueType: 5, FromTs1: 0, ToTs1: 10,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	samples := body["samples"].([]any)
	require.Len(t, samples, 1)
	sample := samples[0].(map[string]any)
	require.Equal(t, float64(3700), sample["timestamp"])
	require.Equal(t, 42.5, sample["value"])
}

func TestResourcePurgeReportsDisabledWhenMaxAgeZero(t *testing.T) {
	h, _ := newTestRouter(t)
	rr, body := doJSON(t, h, http.MethodPost, "/resource/purge", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "failed, resourcecache: purge: max age is disabled", body["status"])
}

func TestResourcePlotReturnsPNG(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	_, _ = doJSON(t, h, http.MethodPost, "/resource/create", resourceCreateRequest{CustomerID: customerID, ValueType: 1, Timestamp: 0, Value: 1})
	_, _ = doJSON(t, h, http.MethodPost, "/resource/create", resourceCreateRequest{CustomerID: customerID, ValueType: 1, Timestamp: 3600, Value: 2})

	rr, _ := doJSON(t, h, http.MethodPost, "/resource/plot", resourceListRequest{CustomerID: customerID, ValueType: 1, FromTs1: 0, ToTs1: 10})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	require.True(t, rr.Body.Len() > 0)
	// PNG magic bytes.
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rr.Body.Bytes()[:4])
}
