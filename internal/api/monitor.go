package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/keywords"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/reconcile"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

type monitorHandler struct {
	store      *store.Store
	reconciler *reconcile.Reconciler
	log        *zap.Logger
}

type monitorResponse struct {
	ID               uint32   `json:"id"`
	CustomerID       uint32   `json:"customer_id"`
	HostSchemeID     uint32   `json:"host_scheme_id"`
	UserOrdering     uint16   `json:"user_ordering"`
	Slug             string   `json:"slug"`
	Method           string   `json:"method"`
	ContentCheckMode string   `json:"content_check_mode"`
	Keywords         []string `json:"keywords,omitempty"`
	PostContentType  string   `json:"post_content_type"`
	UserAgent        string   `json:"user_agent,omitempty"`
	PostContent      string   `json:"post_content,omitempty"`
}

func monitorToResponse(m db.Monitor) monitorResponse {
	resp := monitorResponse{
		ID:               m.ID,
		CustomerID:       m.CustomerID,
		HostSchemeID:     m.HostSchemeID,
		UserOrdering:     m.UserOrdering,
		Slug:             m.Slug,
		Method:           string(m.Method),
		ContentCheckMode: string(m.ContentCheckMode),
		PostContentType:  string(m.PostContentType),
		UserAgent:        m.UserAgent,
	}
	if list, err := keywords.Decode(m.Keywords); err == nil {
		for _, kw := range list {
			resp.Keywords = append(resp.Keywords, base64.StdEncoding.EncodeToString(kw))
		}
	}
	if len(m.PostContent) > 0 {
		resp.PostContent = base64.StdEncoding.EncodeToString(m.PostContent)
	}
	return resp
}

func (h *monitorHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req getByIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m := h.store.Monitors.GetByID(r.Context(), "api.monitor.get", req.ID)
	if m.ID == 0 {
		failed(w, "not found")
		return
	}
	ok(w, monitorToResponse(m))
}

func (h *monitorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req getByIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.Monitors.Delete(r.Context(), "api.monitor.delete", req.ID); err != nil {
		if err == store.ErrNotFound {
			failed(w, "not found")
			return
		}
		h.log.Error("delete monitor failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	ok(w, nil)
}

type listMonitorsResponse struct {
	Monitors []monitorResponse `json:"monitors"`
}

func (h *monitorHandler) List(w http.ResponseWriter, r *http.Request) {
	var req listByCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	list, err := h.store.Monitors.ListByCustomer(r.Context(), "api.monitor.list", req.CustomerID)
	if err != nil {
		h.log.Error("list monitors failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	items := make([]monitorResponse, len(list))
	for i, m := range list {
		items[i] = monitorToResponse(m)
	}
	ok(w, listMonitorsResponse{Monitors: items})
}

// monitorEntryWire is the wire shape of one proposed monitor line (spec §6
// "/monitor/update"). Keywords and post_content travel base64-encoded,
// mirroring the outbound wire shapes of internal/fleet/wire.go.
type monitorEntryWire struct {
	UserOrdering     uint16   `json:"user_ordering"`
	URI              string   `json:"uri"`
	Method           string   `json:"method"`
	ContentCheckMode string   `json:"content_check_mode"`
	Keywords         []string `json:"keywords,omitempty"`
	ContentType      string   `json:"content_type"`
	UserAgent        string   `json:"user_agent,omitempty"`
	PostContent      string   `json:"post_content,omitempty"`
}

func (w monitorEntryWire) toEntry() (reconcile.Entry, error) {
	e := reconcile.Entry{
		UserOrdering:     w.UserOrdering,
		URI:              w.URI,
		Method:           db.Method(w.Method),
		ContentCheckMode: db.ContentCheckMode(w.ContentCheckMode),
		ContentType:      db.PostContentType(w.ContentType),
		UserAgent:        w.UserAgent,
	}
	if e.Method == "" {
		e.Method = db.MethodGet
	}
	if e.ContentCheckMode == "" {
		e.ContentCheckMode = db.ContentCheckNone
	}
	if e.ContentType == "" {
		e.ContentType = db.PostContentText
	}
	for _, kw := range w.Keywords {
		raw, err := base64.StdEncoding.DecodeString(kw)
		if err != nil {
			return reconcile.Entry{}, err
		}
		e.Keywords = append(e.Keywords, raw)
	}
	if w.PostContent != "" {
		raw, err := base64.StdEncoding.DecodeString(w.PostContent)
		if err != nil {
			return reconcile.Entry{}, err
		}
		e.PostContent = raw
	}
	return e, nil
}

// updateMonitorsRequest accepts the two data shapes spec §6 allows: a plain
// array (user_ordering carried on each entry), or an object keyed by slot
// (the key becomes the entry's user_ordering when the entry itself omits
// one).
type updateMonitorsRequest struct {
	CustomerID uint32          `json:"customer_id"`
	Data       json.RawMessage `json:"data"`
}

func (req updateMonitorsRequest) entries() ([]monitorEntryWire, bool) {
	var asList []monitorEntryWire
	if err := json.Unmarshal(req.Data, &asList); err == nil {
		return asList, true
	}
	var asMap map[string]monitorEntryWire
	if err := json.Unmarshal(req.Data, &asMap); err != nil {
		return nil, false
	}
	out := make([]monitorEntryWire, 0, len(asMap))
	for slot, e := range asMap {
		if e.UserOrdering == 0 {
			if n, err := strconv.ParseUint(slot, 10, 16); err == nil {
				e.UserOrdering = uint16(n)
			}
		}
		out = append(out, e)
	}
	return out, true
}

type updateMonitorsResponse struct {
	Errors []monitorFieldError `json:"errors,omitempty"`
}

type monitorFieldError struct {
	UserOrdering uint16 `json:"user_ordering"`
	Message      string `json:"message"`
}

func (h *monitorHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateMonitorsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		req.Data = []byte("[]")
	}

	wireEntries, valid := req.entries()
	if !valid {
		badRequest(w, "data must be an array or an object of entries")
		return
	}

	entries := make([]reconcile.Entry, 0, len(wireEntries))
	var decodeErrs []monitorFieldError
	for _, we := range wireEntries {
		e, err := we.toEntry()
		if err != nil {
			decodeErrs = append(decodeErrs, monitorFieldError{UserOrdering: we.UserOrdering, Message: "invalid base64 field: " + err.Error()})
			continue
		}
		entries = append(entries, e)
	}

	tag := "api.monitor.update"
	caps, err := h.store.Customers.Capabilities(r.Context(), tag, req.CustomerID)
	if err != nil {
		h.log.Error("load capabilities failed", zap.Error(err))
		failed(w, "database error")
		return
	}

	fieldErrs := h.reconciler.Reconcile(r.Context(), tag, req.CustomerID, caps, entries)

	resp := updateMonitorsResponse{}
	for _, fe := range decodeErrs {
		resp.Errors = append(resp.Errors, fe)
	}
	for _, fe := range fieldErrs {
		resp.Errors = append(resp.Errors, monitorFieldError{UserOrdering: fe.UserOrdering, Message: fe.Message})
	}
	ok(w, resp)
}
