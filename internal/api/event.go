package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/events"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/zoran"
)

type eventHandler struct {
	store  *store.Store
	events *events.EventProcessor
	log    *zap.Logger
}

// normalizeEventKind normalizes an inbound event-type string per spec §6:
// "Inbound parsing lower-cases and maps '-'→'_'" — applied in reverse here
// since the stored form is upper-snake; it re-uppercases and maps separators
// so callers may send either style.
func normalizeEventKind(raw string) db.EventKind {
	s := strings.ToUpper(strings.ReplaceAll(raw, "-", "_"))
	return db.EventKind(s)
}

var validEventKinds = map[db.EventKind]bool{
	db.EventWorking: true, db.EventNoResponse: true, db.EventContentChanged: true,
	db.EventKeywords: true, db.EventSSLCertificateExpiring: true, db.EventSSLCertificateRenewed: true,
	db.EventTransaction: true, db.EventInquiry: true, db.EventSupportRequest: true,
	db.EventStorageLimitReached: true,
	db.EventCustomer1: true, db.EventCustomer2: true, db.EventCustomer3: true, db.EventCustomer4: true,
	db.EventCustomer5: true, db.EventCustomer6: true, db.EventCustomer7: true, db.EventCustomer8: true,
	db.EventCustomer9: true, db.EventCustomer10: true,
}

type reportEventRequest struct {
	MonitorID     uint32 `json:"monitor_id"`
	Timestamp     int64  `json:"timestamp"`
	EventType     string `json:"event_type"`
	MonitorStatus string `json:"monitor_status"`
	Message       string `json:"message"`
	Hash          string `json:"hash,omitempty"`
}

// Report handles "/event/report" (spec §6). Unknown monitors are logged at
// info level and acknowledged OK per spec §4.4 — a race against an in-flight delete must
// never trigger a worker retry storm.
func (h *eventHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req reportEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !zoran.InRange(req.Timestamp) {
		badRequest(w, "timestamp out of range")
		return
	}
	kind := normalizeEventKind(req.EventType)
	if !validEventKinds[kind] {
		badRequest(w, "unknown event_type")
		return
	}
	status := db.MonitorStatusValue(strings.ToUpper(req.MonitorStatus))
	if req.Hash != "" {
		if _, err := base64.StdEncoding.DecodeString(req.Hash); err != nil {
			badRequest(w, "hash must be base64")
			return
		}
	}

	tag := "api.event.report"
	monitor := h.store.Monitors.GetByID(r.Context(), tag, req.MonitorID)
	if monitor.ID == 0 {
		h.log.Info("event report for unknown monitor acknowledged", zap.Uint32("monitor_id", req.MonitorID))
		ok(w, nil)
		return
	}

	err := h.events.ReportEvent(r.Context(), tag, monitor.CustomerID, events.Report{
		MonitorID:    monitor.ID,
		UnixTs:       req.Timestamp,
		Kind:         kind,
		WorkerStatus: status,
		Message:      req.Message,
		Hash:         req.Hash,
	})
	if err != nil {
		h.log.Error("report event failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	ok(w, nil)
}

type monitorStatusRequest struct {
	MonitorID uint32 `json:"monitor_id"`
}

type monitorStatusResponse struct {
	MonitorStatus string `json:"monitor_status"`
}

func (h *eventHandler) Status(w http.ResponseWriter, r *http.Request) {
	var req monitorStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status := h.store.Events.GetMonitorStatus(r.Context(), "api.event.status", req.MonitorID)
	ok(w, monitorStatusResponse{MonitorStatus: string(status)})
}

type listEventsRequest struct {
	MonitorID uint32 `json:"monitor_id"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

type eventResponse struct {
	ID        uint32 `json:"id"`
	MonitorID uint32 `json:"monitor_id"`
	Timestamp int64  `json:"timestamp"`
	EventType string `json:"event_type"`
	Message   string `json:"message"`
	Hash      string `json:"hash,omitempty"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
}

func (h *eventHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req listEventsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	list, err := h.store.Events.ListByMonitor(r.Context(), "api.event.get", req.MonitorID, store.ListOptions{Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		h.log.Error("list events failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	items := make([]eventResponse, len(list))
	for i, ev := range list {
		items[i] = eventResponse{
			ID:        ev.ID,
			MonitorID: ev.MonitorID,
			Timestamp: zoran.ToUnix(ev.Timestamp),
			EventType: string(ev.Kind),
			Message:   ev.Message,
			Hash:      ev.Hash,
		}
	}
	ok(w, listEventsResponse{Events: items})
}
