package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/zoran"
)

func TestEventReportUnknownMonitorSilentlyOK(t *testing.T) {
	h, _ := newTestRouter(t)

	rr, body := doJSON(t, h, http.MethodPost, "/event/report", reportEventRequest{
		MonitorID:     999999,
		Timestamp:     zoran.ToUnix(zoran.FromUnix(0)),
		EventType:     "working",
		MonitorStatus: "working",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])
}

func TestEventReportRejectsUnknownEventType(t *testing.T) {
	h, _ := newTestRouter(t)

	rr, body := doJSON(t, h, http.MethodPost, "/event/report", reportEventRequest{
		MonitorID: 1,
		Timestamp: zoran.ToUnix(zoran.FromUnix(0)),
		EventType: "not-a-real-kind",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "failed, unknown event_type", body["status"])
}

func TestEventReportAndGetRoundTrip(t *testing.T) {
	h, st := newTestRouter(t)
	customerID := seedCustomer(t, st)

	ctx := context.Background()
	hs := &db.HostScheme{CustomerID: customerID, Scheme: "https", Authority: "example.com"}
	hsID, err := st.HostSchemes.Create(ctx, "t", hs)
	require.NoError(t, err)
	m := &db.Monitor{CustomerID: customerID, HostSchemeID: hsID, Slug: "/"}
	monitorID, err := st.Monitors.Create(ctx, "t", m)
	require.NoError(t, err)

	now := zoran.ToUnix(zoran.FromUnix(0))
	rr, body := doJSON(t, h, http.MethodPost, "/event/report", reportEventRequest{
		MonitorID:     monitorID,
		Timestamp:     now,
		EventType:     "no-response",
		MonitorStatus: "failed",
		Message:       "connection refused",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, statusOK, body["status"])

	rr, body = doJSON(t, h, http.MethodPost, "/event/get", listEventsRequest{MonitorID: monitorID})
	require.Equal(t, http.StatusOK, rr.Code)
	events := body["events"].([]any)
	require.Len(t, events, 1)
	first := events[0].(map[string]any)
	require.Equal(t, "NO_RESPONSE", first["event_type"])

	rr, body = doJSON(t, h, http.MethodPost, "/event/status", monitorStatusRequest{MonitorID: monitorID})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, body["monitor_status"])
}

func TestEventReportRejectsMalformedHash(t *testing.T) {
	h, _ := newTestRouter(t)

	rr, body := doJSON(t, h, http.MethodPost, "/event/report", reportEventRequest{
		MonitorID: 1,
		Timestamp: zoran.ToUnix(zoran.FromUnix(0)),
		EventType: "working",
		Hash:      "not valid base64 !!",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "failed, hash must be base64", body["status"])
}
