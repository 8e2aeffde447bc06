// Package api implements the REST Adapters (spec §6): a Chi router and a
// set of JSON handlers translating external requests into calls against the
// Store, Monitor Reconciler, Event Processor, and Resource Cache.
//
// Every endpoint responds with a JSON body carrying a "status" field.
// Business failures ("not found", capability denial, a rejected field) are
// reported at HTTP 200 with status "failed, <reason>" — only malformed
// syntactic input (bad JSON, an unparsable id) gets HTTP 400. This is a
// deliberate departure from a conventional REST status-code mapping,
// mandated by spec §6/§7.
package api

import (
	"encoding/json"
	"net/http"
)

// statusOK is the status string every successful response carries.
const statusOK = "OK"

// withStatus is embedded into every response payload so `status` always
// appears alongside whatever else the endpoint returns.
type withStatus struct {
	Status string `json:"status"`
}

// ok writes a 200 response with status "OK" merged into payload. payload
// may be nil, in which case the bare status envelope is written.
func ok(w http.ResponseWriter, payload any) {
	writeJSON(w, http.StatusOK, merge(withStatus{Status: statusOK}, payload))
}

// failed writes a 200 response with status "failed, <reason>" — a business
// failure, not a transport error (spec §6: "business-failure statuses use
// HTTP 200").
func failed(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusOK, withStatus{Status: "failed, " + reason})
}

// badRequest writes a 400 response for malformed syntactic input — the one
// case spec §6 carves out from the HTTP-200-always rule.
func badRequest(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusBadRequest, withStatus{Status: "failed, " + reason})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// merge flattens extra's fields alongside withStatus by re-encoding both
// into one map — extra may be any struct with json tags, or nil.
func merge(base withStatus, extra any) any {
	if extra == nil {
		return base
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return base
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return base
	}
	fields["status"] = base.Status
	return fields
}

// decodeJSON decodes the request body into dst, capped at 1MB and rejecting
// unknown fields, grounded on the teacher's own decodeJSON helper. Writes a
// 400 and returns false on failure so callers can early-return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		badRequest(w, "malformed request body: "+err.Error())
		return false
	}
	return true
}

// binary writes a non-JSON success response (spec §6: "/resource/plot:
// binary response (PNG/JPEG)").
func binary(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
