// Package reconcile implements the Monitor Reconciler (spec §4.5): it takes
// a customer's full desired monitor configuration, validates and sorts it,
// diffs it against the currently persisted host/schemes and monitors, and
// writes the difference — creating, updating, and sweeping away whatever no
// longer applies.
package reconcile

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/keywords"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

// Entry is one proposed monitor configuration line, the reconciler's input
// unit (spec §4.5).
type Entry struct {
	UserOrdering     uint16
	URI              string
	Method           db.Method
	ContentCheckMode db.ContentCheckMode
	Keywords         [][]byte
	ContentType      db.PostContentType
	UserAgent        string
	PostContent      []byte
}

// FieldError reports a single rejected or failed entry, keyed by its
// original user-ordering (spec §4.5: "errors are accumulated, not thrown").
type FieldError struct {
	UserOrdering uint16
	Message      string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("entry %d: %s", e.UserOrdering, e.Message)
}

// Scheduler is the narrow slice of the Deferred Scheduler the reconciler
// enqueues into on success (§4.5 step 6).
type Scheduler interface {
	Enqueue(customerID uint32, deactivate bool)
}

// Reconciler is the Monitor Reconciler.
type Reconciler struct {
	store *store.Store
	sched Scheduler
	log   *zap.Logger
}

// New constructs a Reconciler.
func New(st *store.Store, sched Scheduler, log *zap.Logger) *Reconciler {
	return &Reconciler{store: st, sched: sched, log: log.Named("reconcile")}
}

type sortedEntry struct {
	Entry
	newOrdering uint16
	fullURL     *url.URL // the entry's URI as parsed; relative for relative entries
	slug        string
}

// Reconcile runs the full procedure of spec §4.5 for one customer.
func (r *Reconciler) Reconcile(ctx context.Context, tag string, customerID uint32, caps db.CustomerCapabilities, entries []Entry) []FieldError {
	if len(entries) == 0 {
		if err := r.store.HostSchemes.DeleteAllForCustomer(ctx, tag, customerID); err != nil {
			return []FieldError{{Message: fmt.Sprintf("cascade delete failed: %v", err)}}
		}
		r.enqueueSchedule(ctx, tag, customerID)
		return nil
	}

	sorted, errs := r.validateAndSort(caps, entries)
	if len(sorted) == 0 {
		return errs
	}

	existingSchemes, err := r.store.HostSchemes.ListByCustomer(ctx, tag, customerID)
	if err != nil {
		return append(errs, FieldError{Message: fmt.Sprintf("load existing host/schemes failed: %v", err)})
	}
	schemeByKey := make(map[string]db.HostScheme, len(existingSchemes))
	for _, hs := range existingSchemes {
		schemeByKey[schemeKey(hs.Scheme, hs.Authority)] = hs
	}

	existingMonitors, err := r.store.Monitors.ListByCustomer(ctx, tag, customerID)
	if err != nil {
		return append(errs, FieldError{Message: fmt.Sprintf("load existing monitors failed: %v", err)})
	}

	referencedSchemes := make(map[uint32]bool)
	referencedMonitors := make(map[uint32]bool)

	var lastScheme, lastAuthority string
	haveLast := false

	for _, se := range sorted {
		scheme, authority, path, rawQuery, isFull := splitEntryURL(se.fullURL)
		if isFull {
			lastScheme, lastAuthority = scheme, authority
			haveLast = true
		} else if haveLast {
			scheme, authority = lastScheme, lastAuthority
		} else {
			errs = append(errs, FieldError{UserOrdering: se.UserOrdering, Message: "relative entry with no preceding fully-qualified entry"})
			continue
		}

		slug := computeSlug(path, rawQuery)

		key := schemeKey(scheme, authority)
		hs, ok := schemeByKey[key]
		if !ok {
			hs = db.HostScheme{CustomerID: customerID, Scheme: scheme, Authority: authority}
			id, err := r.store.HostSchemes.Create(ctx, tag, &hs)
			if err != nil {
				errs = append(errs, FieldError{UserOrdering: se.UserOrdering, Message: fmt.Sprintf("create host/scheme failed: %v", err)})
				continue
			}
			hs.ID = id
			schemeByKey[key] = hs
		}
		referencedSchemes[hs.ID] = true

		var existing *db.Monitor
		for i := range existingMonitors {
			if existingMonitors[i].HostSchemeID == hs.ID && existingMonitors[i].Slug == slug {
				existing = &existingMonitors[i]
				break
			}
		}

		if existing != nil {
			referencedMonitors[existing.ID] = true
			if monitorDiffers(existing, se, hs.ID, slug) {
				updated := *existing
				applyEntry(&updated, se, hs.ID, slug)
				if err := r.store.Monitors.Update(ctx, tag, &updated); err != nil {
					errs = append(errs, FieldError{UserOrdering: se.UserOrdering, Message: fmt.Sprintf("update monitor failed: %v", err)})
				}
			}
			continue
		}

		m := db.Monitor{CustomerID: customerID}
		applyEntry(&m, se, hs.ID, slug)
		id, err := r.store.Monitors.Create(ctx, tag, &m)
		if err != nil {
			errs = append(errs, FieldError{UserOrdering: se.UserOrdering, Message: fmt.Sprintf("create monitor failed: %v", err)})
			continue
		}
		referencedMonitors[id] = true
	}

	for _, m := range existingMonitors {
		if !referencedMonitors[m.ID] {
			if err := r.store.Monitors.Delete(ctx, tag, m.ID); err != nil {
				r.log.Error("reconcile: sweep monitor delete failed", zap.String("tag", tag), zap.Uint32("monitor_id", m.ID), zap.Error(err))
			}
		}
	}
	for _, hs := range existingSchemes {
		if !referencedSchemes[hs.ID] {
			if err := r.store.HostSchemes.Delete(ctx, tag, hs.ID); err != nil {
				r.log.Error("reconcile: sweep host/scheme delete failed", zap.String("tag", tag), zap.Uint32("host_scheme_id", hs.ID), zap.Error(err))
			}
		}
	}

	r.enqueueSchedule(ctx, tag, customerID)
	return errs
}

func (r *Reconciler) enqueueSchedule(ctx context.Context, tag string, customerID uint32) {
	cust := r.store.Customers.GetByID(ctx, tag, customerID)
	if r.sched != nil {
		r.sched.Enqueue(customerID, !cust.Active)
	}
}

// validateAndSort implements spec §4.5 step 1.
func (r *Reconciler) validateAndSort(caps db.CustomerCapabilities, entries []Entry) ([]sortedEntry, []FieldError) {
	var errs []FieldError
	seenOrdering := make(map[uint16]bool, len(entries))
	parsed := make([]sortedEntry, 0, len(entries))

	for _, e := range entries {
		if seenOrdering[e.UserOrdering] {
			errs = append(errs, FieldError{UserOrdering: e.UserOrdering, Message: "duplicate user ordering"})
			continue
		}
		seenOrdering[e.UserOrdering] = true

		u, err := url.Parse(e.URI)
		if err != nil {
			errs = append(errs, FieldError{UserOrdering: e.UserOrdering, Message: fmt.Sprintf("invalid uri: %v", err)})
			continue
		}
		if u.Fragment != "" {
			errs = append(errs, FieldError{UserOrdering: e.UserOrdering, Message: "uri has a fragment"})
			continue
		}
		if u.User != nil {
			errs = append(errs, FieldError{UserOrdering: e.UserOrdering, Message: "uri has userinfo"})
			continue
		}
		isFull := u.Scheme != "" && u.Host != ""
		isRelative := u.Scheme == "" && u.Host == ""
		if isFull == isRelative {
			errs = append(errs, FieldError{UserOrdering: e.UserOrdering, Message: "uri must be exactly one of fully qualified or relative"})
			continue
		}

		if e.Method == db.MethodPost && !caps.SupportsPost {
			errs = append(errs, FieldError{UserOrdering: e.UserOrdering, Message: "customer lacks POST capability"})
			continue
		}
		if needsContentCheckCapability(e.ContentCheckMode) && !caps.SupportsContentCheck {
			errs = append(errs, FieldError{UserOrdering: e.UserOrdering, Message: "customer lacks content-check capability"})
			continue
		}
		if needsKeywordCapability(e.ContentCheckMode) && !caps.SupportsKeywordCheck {
			errs = append(errs, FieldError{UserOrdering: e.UserOrdering, Message: "customer lacks keyword-check capability"})
			continue
		}

		parsed = append(parsed, sortedEntry{Entry: e, fullURL: u})
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].UserOrdering < parsed[j].UserOrdering })

	if len(parsed) > 0 {
		_, _, _, _, isFull := splitEntryURL(parsed[0].fullURL)
		if !isFull {
			errs = append(errs, FieldError{UserOrdering: parsed[0].UserOrdering, Message: "first entry by user ordering must be fully qualified"})
			parsed = parsed[1:]
		}
	}

	for i := range parsed {
		parsed[i].newOrdering = uint16(i)
	}

	return parsed, errs
}

func needsContentCheckCapability(mode db.ContentCheckMode) bool {
	switch mode {
	case db.ContentCheckContentMatch, db.ContentCheckSmartContentMatch:
		return true
	default:
		return false
	}
}

func needsKeywordCapability(mode db.ContentCheckMode) bool {
	switch mode {
	case db.ContentCheckAnyKeywords, db.ContentCheckAllKeywords:
		return true
	default:
		return false
	}
}

func splitEntryURL(u *url.URL) (scheme, authority, path, rawQuery string, isFull bool) {
	isFull = u.Scheme != "" && u.Host != ""
	if isFull {
		return u.Scheme, u.Host, u.Path, u.RawQuery, true
	}
	return "", "", u.Path, u.RawQuery, false
}

// computeSlug implements spec §4.5 step 3's slug formula.
func computeSlug(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	if strings.HasSuffix(path, "/") {
		return path + "?" + rawQuery
	}
	return path + "/?" + rawQuery
}

func schemeKey(scheme, authority string) string {
	return strings.ToLower(scheme) + "|" + strings.ToLower(authority)
}

func monitorDiffers(existing *db.Monitor, se sortedEntry, hostSchemeID uint32, slug string) bool {
	if existing.HostSchemeID != hostSchemeID || existing.Slug != slug {
		return true
	}
	if existing.UserOrdering != se.newOrdering {
		return true
	}
	if existing.Method != se.Method || existing.ContentCheckMode != se.ContentCheckMode {
		return true
	}
	if existing.PostContentType != se.ContentType || existing.UserAgent != se.UserAgent {
		return true
	}
	if string(existing.PostContent) != string(se.PostContent) {
		return true
	}
	return string(existing.Keywords) != string(keywords.Encode(se.Keywords))
}

func applyEntry(m *db.Monitor, se sortedEntry, hostSchemeID uint32, slug string) {
	m.HostSchemeID = hostSchemeID
	m.Slug = slug
	m.UserOrdering = se.newOrdering
	m.Method = se.Method
	m.ContentCheckMode = se.ContentCheckMode
	m.PostContentType = se.ContentType
	m.UserAgent = se.UserAgent
	m.PostContent = se.PostContent
	m.Keywords = keywords.Encode(se.Keywords)
}
