package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/zoran"
)

type multipleHandler struct {
	store *store.Store
	log   *zap.Logger
}

type multipleListResponse struct {
	HostSchemes []hostSchemeResponse `json:"host_schemes"`
	Monitors    []monitorResponse    `json:"monitors"`
	Events      []eventResponse      `json:"events"`
	Statuses    map[uint32]string    `json:"statuses"`
}

// List bundles every host/scheme, monitor, recent event, and derived status
// for one customer in a single round trip (spec §6 "/multiple/list") —
// built for a dashboard view that would otherwise cost four separate calls.
func (h *multipleHandler) List(w http.ResponseWriter, r *http.Request) {
	var req listByCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	tag := "api.multiple.list"

	schemes, err := h.store.HostSchemes.ListByCustomer(ctx, tag, req.CustomerID)
	if err != nil {
		h.log.Error("bundle: list host/schemes failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	monitors, err := h.store.Monitors.ListByCustomer(ctx, tag, req.CustomerID)
	if err != nil {
		h.log.Error("bundle: list monitors failed", zap.Error(err))
		failed(w, "database error")
		return
	}

	hostSchemeItems := make([]hostSchemeResponse, len(schemes))
	for i, hs := range schemes {
		hostSchemeItems[i] = hostSchemeToResponse(hs)
	}

	monitorItems := make([]monitorResponse, len(monitors))
	statuses := make(map[uint32]string, len(monitors))
	var events []eventResponse
	for i, m := range monitors {
		monitorItems[i] = monitorToResponse(m)
		statuses[m.ID] = string(h.store.Events.GetMonitorStatus(ctx, tag, m.ID))

		history, err := h.store.Events.ListByMonitor(ctx, tag, m.ID, store.ListOptions{Limit: 20})
		if err != nil {
			h.log.Error("bundle: list events failed", zap.Uint32("monitor_id", m.ID), zap.Error(err))
			continue
		}
		for _, ev := range history {
			events = append(events, eventResponse{
				ID:        ev.ID,
				MonitorID: ev.MonitorID,
				Timestamp: zoran.ToUnix(ev.Timestamp),
				EventType: string(ev.Kind),
				Message:   ev.Message,
				Hash:      ev.Hash,
			})
		}
	}

	ok(w, multipleListResponse{
		HostSchemes: hostSchemeItems,
		Monitors:    monitorItems,
		Events:      events,
		Statuses:    statuses,
	})
}
