package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultipleListBundlesHostSchemesMonitorsAndEvents(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	_, _ = doJSON(t, h, http.MethodPost, "/host_scheme/create", createHostSchemeRequest{CustomerID: customerID, URL: "https://example.com"})
	_, _ = doJSON(t, h, http.MethodPost, "/monitor/update", map[string]any{
		"customer_id": customerID,
		"data":        []map[string]any{{"user_ordering": 1, "uri": "https://example.com/"}},
	})

	rr, body := doJSON(t, h, http.MethodPost, "/multiple/list", listByCustomerRequest{CustomerID: customerID})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])
	require.Len(t, body["host_schemes"].([]any), 1)
	require.Len(t, body["monitors"].([]any), 1)
	require.NotNil(t, body["statuses"])
}
