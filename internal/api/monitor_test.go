package api

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitorUpdateAcceptsArrayShapeThenListsAndGets(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	rr, body := doJSON(t, h, http.MethodPost, "/monitor/update", map[string]any{
		"customer_id": customerID,
		"data": []map[string]any{
			{"user_ordering": 1, "uri": "https://example.com/"},
			{"user_ordering": 2, "uri": "https://example.com/status"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])
	require.Nil(t, body["errors"])

	rr, body = doJSON(t, h, http.MethodPost, "/monitor/list", listByCustomerRequest{CustomerID: customerID})
	require.Equal(t, http.StatusOK, rr.Code)
	items := body["monitors"].([]any)
	require.Len(t, items, 2)

	first := items[0].(map[string]any)
	id := uint32(first["id"].(float64))

	rr, body = doJSON(t, h, http.MethodPost, "/monitor/get", getByIDRequest{ID: id})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/monitor/delete", getByIDRequest{ID: id})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])
}

func TestMonitorUpdateAcceptsSlotKeyedObjectShape(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	rr, body := doJSON(t, h, http.MethodPost, "/monitor/update", map[string]any{
		"customer_id": customerID,
		"data": map[string]any{
			"1": map[string]any{"uri": "https://example.com/"},
			"2": map[string]any{"uri": "https://example.com/status"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/monitor/list", listByCustomerRequest{CustomerID: customerID})
	require.Equal(t, http.StatusOK, rr.Code)
	items := body["monitors"].([]any)
	require.Len(t, items, 2)
}

func TestMonitorUpdateReportsFieldErrorsForBadBase64Keyword(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	rr, body := doJSON(t, h, http.MethodPost, "/monitor/update", map[string]any{
		"customer_id": customerID,
		"data": []map[string]any{
			{"user_ordering": 1, "uri": "https://example.com/", "keywords": []string{"not-valid-base64!!"}},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
}

func TestMonitorUpdateEmptyDataClearsAllMonitors(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	_, _ = doJSON(t, h, http.MethodPost, "/monitor/update", map[string]any{
		"customer_id": customerID,
		"data":        []map[string]any{{"user_ordering": 1, "uri": "https://example.com/"}},
	})
	rr, body := doJSON(t, h, http.MethodPost, "/monitor/update", map[string]any{
		"customer_id": customerID,
		"data":        []map[string]any{},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/monitor/list", listByCustomerRequest{CustomerID: customerID})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, body["monitors"])
}

func TestMonitorEntryWireToEntryBase64RoundTrips(t *testing.T) {
	wire := monitorEntryWire{
		UserOrdering: 3,
		URI:          "https://example.com/",
		Keywords:     []string{base64.StdEncoding.EncodeToString([]byte("hello"))},
		PostContent:  base64.StdEncoding.EncodeToString([]byte("body")),
	}
	entry, err := wire.toEntry()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("hello")}, entry.Keywords)
	require.Equal(t, []byte("body"), entry.PostContent)
}
