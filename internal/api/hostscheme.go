package api

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

type hostSchemeHandler struct {
	store *store.Store
	log   *zap.Logger
}

type hostSchemeResponse struct {
	ID                     uint32 `json:"id"`
	CustomerID             uint32 `json:"customer_id"`
	URL                    string `json:"url"`
	SSLExpirationTimestamp int64  `json:"ssl_expiration_timestamp"`
}

func hostSchemeToResponse(hs db.HostScheme) hostSchemeResponse {
	return hostSchemeResponse{
		ID:                     hs.ID,
		CustomerID:             hs.CustomerID,
		URL:                    hs.URL(),
		SSLExpirationTimestamp: hs.SSLExpirationTimestamp,
	}
}

// allowedSchemes mirrors the restriction of spec §3: "scheme ∈
// {http,https,ftp,sftp}".
var allowedSchemes = map[string]bool{"http": true, "https": true, "ftp": true, "sftp": true}

// parseHostSchemeURL validates a "scheme://authority" URL per spec §3: no
// path, query, or fragment, and a scheme drawn from allowedSchemes.
func parseHostSchemeURL(raw string) (scheme, authority string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", "", false
	}
	scheme = strings.ToLower(u.Scheme)
	if !allowedSchemes[scheme] || u.Host == "" {
		return "", "", false
	}
	return scheme, u.Host, true
}

type getByIDRequest struct {
	ID uint32 `json:"id"`
}

func (h *hostSchemeHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req getByIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hs := h.store.HostSchemes.GetByID(r.Context(), "api.host_scheme.get", req.ID)
	if hs.ID == 0 {
		failed(w, "not found")
		return
	}
	ok(w, hostSchemeToResponse(hs))
}

type createHostSchemeRequest struct {
	CustomerID uint32 `json:"customer_id"`
	URL        string `json:"url"`
}

func (h *hostSchemeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHostSchemeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	scheme, authority, valid := parseHostSchemeURL(req.URL)
	if !valid {
		failed(w, "invalid url")
		return
	}

	tag := "api.host_scheme.create"
	existing, err := h.store.HostSchemes.FindByCustomerSchemeAuthority(r.Context(), tag, req.CustomerID, scheme, authority)
	if err != nil {
		h.log.Error("create host/scheme: lookup failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	if existing != nil {
		ok(w, hostSchemeToResponse(*existing))
		return
	}

	hs := db.HostScheme{CustomerID: req.CustomerID, Scheme: scheme, Authority: authority}
	id, err := h.store.HostSchemes.Create(r.Context(), tag, &hs)
	if err != nil {
		h.log.Error("create host/scheme: insert failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	hs.ID = id
	ok(w, hostSchemeToResponse(hs))
}

type modifyHostSchemeRequest struct {
	ID  uint32 `json:"id"`
	URL string `json:"url"`
}

// Modify re-points an existing host/scheme at a different scheme/authority.
// Monitors referencing it are unaffected — they are keyed by host_scheme_id,
// not by the scheme/authority pair itself.
func (h *hostSchemeHandler) Modify(w http.ResponseWriter, r *http.Request) {
	var req modifyHostSchemeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	scheme, authority, valid := parseHostSchemeURL(req.URL)
	if !valid {
		failed(w, "invalid url")
		return
	}

	tag := "api.host_scheme.modify"
	if err := h.store.HostSchemes.Update(r.Context(), tag, req.ID, scheme, authority); err != nil {
		if err == store.ErrNotFound {
			failed(w, "not found")
			return
		}
		h.log.Error("modify host/scheme failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	hs := h.store.HostSchemes.GetByID(r.Context(), tag, req.ID)
	ok(w, hostSchemeToResponse(hs))
}

type certificateRequest struct {
	ID                     uint32 `json:"id"`
	SSLExpirationTimestamp int64  `json:"ssl_expiration_timestamp"`
}

// Certificate records the outcome of an SSL probe — the last-known
// expiration timestamp the sweeper (spec §4.4) watches.
func (h *hostSchemeHandler) Certificate(w http.ResponseWriter, r *http.Request) {
	var req certificateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tag := "api.host_scheme.certificate"
	if err := h.store.HostSchemes.UpdateSSLExpiration(r.Context(), tag, req.ID, req.SSLExpirationTimestamp); err != nil {
		if err == store.ErrNotFound {
			failed(w, "not found")
			return
		}
		h.log.Error("update ssl expiration failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	ok(w, nil)
}

func (h *hostSchemeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req getByIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tag := "api.host_scheme.delete"
	if err := h.store.HostSchemes.Delete(r.Context(), tag, req.ID); err != nil {
		if err == store.ErrNotFound {
			failed(w, "not found")
			return
		}
		h.log.Error("delete host/scheme failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	ok(w, nil)
}

type listByCustomerRequest struct {
	CustomerID uint32 `json:"customer_id"`
}

type listHostSchemesResponse struct {
	HostSchemes []hostSchemeResponse `json:"host_schemes"`
}

func (h *hostSchemeHandler) List(w http.ResponseWriter, r *http.Request) {
	var req listByCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	list, err := h.store.HostSchemes.ListByCustomer(r.Context(), "api.host_scheme.list", req.CustomerID)
	if err != nil {
		h.log.Error("list host/schemes failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	items := make([]hostSchemeResponse, len(list))
	for i, hs := range list {
		items[i] = hostSchemeToResponse(hs)
	}
	ok(w, listHostSchemesResponse{HostSchemes: items})
}
