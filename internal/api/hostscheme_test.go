package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostSchemeCreateGetModifyDelete(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	rr, body := doJSON(t, h, http.MethodPost, "/host_scheme/create", createHostSchemeRequest{
		CustomerID: customerID,
		URL:        "https://example.com",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])
	id := uint32(body["id"].(float64))
	require.NotZero(t, id)
	require.Equal(t, "https://example.com", body["url"])

	// creating the same scheme/authority again returns the existing row.
	rr, body = doJSON(t, h, http.MethodPost, "/host_scheme/create", createHostSchemeRequest{
		CustomerID: customerID,
		URL:        "https://example.com",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, float64(id), body["id"])

	rr, body = doJSON(t, h, http.MethodPost, "/host_scheme/get", getByIDRequest{ID: id})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/host_scheme/modify", modifyHostSchemeRequest{ID: id, URL: "https://other.example.com"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "https://other.example.com", body["url"])

	rr, body = doJSON(t, h, http.MethodPost, "/host_scheme/certificate", certificateRequest{ID: id, SSLExpirationTimestamp: 123456})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/host_scheme/list", listByCustomerRequest{CustomerID: customerID})
	require.Equal(t, http.StatusOK, rr.Code)
	items := body["host_schemes"].([]any)
	require.Len(t, items, 1)

	rr, body = doJSON(t, h, http.MethodPost, "/host_scheme/delete", getByIDRequest{ID: id})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/host_scheme/get", getByIDRequest{ID: id})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "failed, not found", body["status"])
}

func TestHostSchemeCreateRejectsInvalidURL(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	rr, body := doJSON(t, h, http.MethodPost, "/host_scheme/create", createHostSchemeRequest{
		CustomerID: customerID,
		URL:        "https://example.com/some/path",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "failed, invalid url", body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/host_scheme/create", createHostSchemeRequest{
		CustomerID: customerID,
		URL:        "gopher://example.com",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "failed, invalid url", body["status"])
}

func TestHostSchemeGetMalformedBodyIsBadRequest(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httpRequestWithRawBody(t, "/host_scheme/get", `{"id": "not-a-number"}`)
	rr := serve(h, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
