// Package fleet implements the Fleet Administrator (spec §4.7): the
// in-memory view of workers by (status, region), customer→worker mapping
// computation honoring single/multi-region policy, and the outbound
// add/remove/pause/region wire commands.
//
// Generalized from internal/agentmanager.Manager's
// Manager{mu sync.RWMutex, agents map[string]*ConnectedAgent} registry shape:
// one mutex guards a small set of in-memory indices, lazily rebuilt from the
// Store on first use, kept in sync with every mutation.
package fleet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/keywords"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

// Poster is the narrow slice of the Outbound Dispatcher the Fleet
// Administrator pushes wire commands through (§4.2, §4.7).
type Poster interface {
	PostJSON(identifier, endpoint string, v interface{}, logText string, callback func(resp []byte, err error)) error
	PostEmpty(identifier, endpoint, logText string)
}

// Fleet is the Fleet Administrator. The zero value is not usable; build with New.
type Fleet struct {
	store *store.Store
	post  Poster
	log   *zap.Logger

	mu     sync.Mutex
	loaded bool

	serversByID          map[uint32]db.Server
	serverIDByIdentifier map[string]uint32
	activeByRegion       map[uint32]map[uint32]bool
	inactiveByRegion     map[uint32]map[uint32]bool
	defunctByRegion      map[uint32]map[uint32]bool
	regionIndexByRegion  map[uint32]int
}

// New constructs a Fleet Administrator.
func New(st *store.Store, post Poster, log *zap.Logger) *Fleet {
	return &Fleet{
		store:                st,
		post:                 post,
		log:                  log.Named("fleet"),
		serversByID:          make(map[uint32]db.Server),
		serverIDByIdentifier: make(map[string]uint32),
		activeByRegion:       make(map[uint32]map[uint32]bool),
		inactiveByRegion:     make(map[uint32]map[uint32]bool),
		defunctByRegion:      make(map[uint32]map[uint32]bool),
		regionIndexByRegion:  make(map[uint32]int),
	}
}

// ensureLoaded lazily rebuilds the in-memory snapshot from the Store. Caller
// must hold f.mu.
func (f *Fleet) ensureLoaded(ctx context.Context, tag string) error {
	if f.loaded {
		return nil
	}
	servers, err := f.store.Servers.ListAll(ctx, tag)
	if err != nil {
		return fmt.Errorf("fleet: load servers: %w", err)
	}
	for _, srv := range servers {
		f.indexServer(srv)
	}
	f.recomputeRegionIndices()
	f.loaded = true
	return nil
}

func (f *Fleet) statusBucket(status db.ServerStatus) map[uint32]map[uint32]bool {
	switch status {
	case db.ServerActive:
		return f.activeByRegion
	case db.ServerInactive:
		return f.inactiveByRegion
	default:
		return f.defunctByRegion
	}
}

func (f *Fleet) indexServer(srv db.Server) {
	f.serversByID[srv.ID] = srv
	f.serverIDByIdentifier[srv.Identifier] = srv.ID
	bucket := f.statusBucket(srv.Status)
	if bucket[srv.RegionID] == nil {
		bucket[srv.RegionID] = make(map[uint32]bool)
	}
	bucket[srv.RegionID][srv.ID] = true
}

func (f *Fleet) unindexServer(srv db.Server) {
	delete(f.serversByID, srv.ID)
	delete(f.serverIDByIdentifier, srv.Identifier)
	bucket := f.statusBucket(srv.Status)
	if bucket[srv.RegionID] != nil {
		delete(bucket[srv.RegionID], srv.ID)
		if len(bucket[srv.RegionID]) == 0 {
			delete(bucket, srv.RegionID)
		}
	}
}

// recomputeRegionIndices assigns a deterministic 0-based index to each
// region with at least one ACTIVE worker, in region-id-ascending order
// (§4.7).
func (f *Fleet) recomputeRegionIndices() {
	regionIDs := make([]uint32, 0, len(f.activeByRegion))
	for regionID, servers := range f.activeByRegion {
		if len(servers) > 0 {
			regionIDs = append(regionIDs, regionID)
		}
	}
	sort.Slice(regionIDs, func(i, j int) bool { return regionIDs[i] < regionIDs[j] })

	f.regionIndexByRegion = make(map[uint32]int, len(regionIDs))
	for i, regionID := range regionIDs {
		f.regionIndexByRegion[regionID] = i
	}
}

// CreateServer creates a worker row in whatever status is supplied and
// immediately posts /state/inactive — it must self-introduce before going
// active (§4.7).
func (f *Fleet) CreateServer(ctx context.Context, tag string, regionID uint32, identifier string, status db.ServerStatus) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(ctx, tag); err != nil {
		return 0, err
	}

	srv := &db.Server{RegionID: regionID, Identifier: identifier, Status: status}
	id, err := f.store.Servers.Create(ctx, tag, srv)
	if err != nil {
		return 0, err
	}
	srv.ID = id
	f.indexServer(*srv)
	if status == db.ServerActive {
		f.recomputeRegionIndices()
	}

	f.post.PostEmpty(identifier, "/state/inactive", fmt.Sprintf("create server id=%d", id))
	return id, nil
}

// ModifyServer overwrites a server's region/identifier. Allowed only when
// current status != ACTIVE (§4.7).
func (f *Fleet) ModifyServer(ctx context.Context, tag string, id, regionID uint32, identifier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(ctx, tag); err != nil {
		return err
	}

	srv, ok := f.serversByID[id]
	if !ok {
		return store.ErrNotFound
	}
	if srv.Status == db.ServerActive {
		return fmt.Errorf("fleet: modify server: %w: server is ACTIVE", store.ErrInvalid)
	}

	if err := f.store.Servers.Modify(ctx, tag, id, regionID, identifier); err != nil {
		return err
	}

	f.unindexServer(srv)
	srv.RegionID = regionID
	srv.Identifier = identifier
	f.indexServer(srv)
	return nil
}

// DeleteServer removes a worker. Only DEFUNCT servers may be deleted (§4.7).
func (f *Fleet) DeleteServer(ctx context.Context, tag string, id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(ctx, tag); err != nil {
		return err
	}

	srv, ok := f.serversByID[id]
	if !ok {
		return store.ErrNotFound
	}
	if srv.Status != db.ServerDefunct {
		return fmt.Errorf("fleet: delete server: %w: server is not DEFUNCT", store.ErrInvalid)
	}

	if err := f.store.Servers.Delete(ctx, tag, id); err != nil {
		return err
	}
	f.unindexServer(srv)
	return nil
}

// ChangeStatus transitions a worker's status, recomputing region indices and
// issuing the associated wire commands (§4.7).
func (f *Fleet) ChangeStatus(ctx context.Context, tag string, id uint32, newStatus db.ServerStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(ctx, tag); err != nil {
		return err
	}

	srv, ok := f.serversByID[id]
	if !ok {
		return store.ErrNotFound
	}
	if srv.Status == newStatus {
		return nil
	}

	activeCountBefore := len(f.activeByRegion)

	if err := f.store.Servers.SetStatus(ctx, tag, id, newStatus); err != nil {
		return err
	}

	f.unindexServer(srv)
	srv.Status = newStatus
	f.indexServer(srv)

	if len(f.activeByRegion) != activeCountBefore {
		f.recomputeRegionIndices()
	}

	switch newStatus {
	case db.ServerActive:
		f.post.PostJSON(srv.Identifier, "/region/change", regionChangeBody{
			RegionIndex:   f.regionIndexByRegion[srv.RegionID],
			NumberRegions: len(f.regionIndexByRegion),
		}, fmt.Sprintf("region change server=%d", id), nil)

		mappings, err := f.store.Mappings.ListAll(ctx, tag)
		if err != nil {
			f.log.Error("fleet: change status: list mappings", zap.Error(err))
			break
		}
		for _, m := range mappings {
			members := store.ParseMembers(m.Members)
			for _, memberID := range members {
				if memberID == id {
					isPrimary := m.PrimaryID == id
					body, err := f.buildCustomerConfig(ctx, tag, m.CustomerID, isPrimary)
					if err != nil {
						f.log.Error("fleet: build customer config", zap.Uint32("customer_id", m.CustomerID), zap.Error(err))
						continue
					}
					f.post.PostJSON(srv.Identifier, "/customer/add", body, fmt.Sprintf("customer add customer=%d server=%d", m.CustomerID, id), nil)
					break
				}
			}
		}

	case db.ServerInactive:
		f.post.PostEmpty(srv.Identifier, "/state/inactive", fmt.Sprintf("state inactive server=%d", id))
	}

	return nil
}

// activeServersSortedAll returns every ACTIVE server id across all regions,
// sorted by ascending CPU load.
func (f *Fleet) activeServersSortedAll() []uint32 {
	var ids []uint32
	for _, servers := range f.activeByRegion {
		for id := range servers {
			ids = append(ids, id)
		}
	}
	f.sortByCPULoad(ids)
	return ids
}

func (f *Fleet) activeServersSortedInRegion(regionID uint32) []uint32 {
	ids := make([]uint32, 0, len(f.activeByRegion[regionID]))
	for id := range f.activeByRegion[regionID] {
		ids = append(ids, id)
	}
	f.sortByCPULoad(ids)
	return ids
}

func (f *Fleet) sortByCPULoad(ids []uint32) {
	sort.Slice(ids, func(i, j int) bool {
		return f.serversByID[ids[i]].CPULoad < f.serversByID[ids[j]].CPULoad
	})
}

// AssignSingleRegion implements the single-region assignment policy of
// §4.7: pick the lowest-CPU ACTIVE worker overall, keeping the existing
// assignment if it is already that worker.
func (f *Fleet) AssignSingleRegion(ctx context.Context, tag string, currentMembers []uint32) (members []uint32, removed []uint32, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(ctx, tag); err != nil {
		return nil, nil, err
	}

	candidates := f.activeServersSortedAll()
	if len(candidates) == 0 {
		return nil, currentMembers, nil
	}
	best := candidates[0]

	for _, m := range currentMembers {
		if m == best {
			return []uint32{best}, removeFrom(currentMembers, best), nil
		}
	}
	return []uint32{best}, currentMembers, nil
}

// AssignMultiRegion implements the multi-region assignment policy of §4.7:
// for each active region with no already-assigned worker, pick its
// lowest-CPU ACTIVE worker; prune duplicates-within-a-region, non-ACTIVE,
// and excluded assignments.
func (f *Fleet) AssignMultiRegion(ctx context.Context, tag string, currentMembers []uint32, exclude map[uint32]bool) (members []uint32, removed []uint32, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(ctx, tag); err != nil {
		return nil, nil, err
	}

	regionAssigned := make(map[uint32]uint32) // regionID -> surviving member
	for _, m := range currentMembers {
		srv, ok := f.serversByID[m]
		if !ok || srv.Status != db.ServerActive || exclude[m] {
			removed = append(removed, m)
			continue
		}
		if _, taken := regionAssigned[srv.RegionID]; taken {
			removed = append(removed, m)
			continue
		}
		regionAssigned[srv.RegionID] = m
	}

	for regionID := range f.regionIndexByRegion {
		if _, ok := regionAssigned[regionID]; ok {
			continue
		}
		candidates := f.activeServersSortedInRegion(regionID)
		for _, id := range candidates {
			if exclude[id] {
				continue
			}
			regionAssigned[regionID] = id
			break
		}
	}

	for _, id := range regionAssigned {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members, removed, nil
}

// resolvePrimary replaces a missing primary with the lowest-CPU remaining
// member (§4.7).
func (f *Fleet) resolvePrimary(currentPrimary uint32, members []uint32) uint32 {
	for _, m := range members {
		if m == currentPrimary {
			return currentPrimary
		}
	}
	if len(members) == 0 {
		return 0
	}
	sorted := append([]uint32(nil), members...)
	f.sortByCPULoad(sorted)
	return sorted[0]
}

func removeFrom(ids []uint32, target uint32) []uint32 {
	var out []uint32
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Activate recomputes a customer's worker mapping, diffs it with the stored
// mapping, persists the result, and posts the corresponding wire commands
// (§4.7: "Activate customer"). Satisfies deferred.Fleet.
func (f *Fleet) Activate(ctx context.Context, customerID uint32) error {
	tag := "fleet-activate"

	caps, err := f.store.Customers.Capabilities(ctx, tag, customerID)
	if err != nil {
		return err
	}

	existing, err := f.store.Mappings.Get(ctx, tag, customerID)
	if err != nil {
		return err
	}
	var currentMembers []uint32
	var currentPrimary uint32
	if existing != nil {
		currentMembers = store.ParseMembers(existing.Members)
		currentPrimary = existing.PrimaryID
	}

	var newMembers, removed []uint32
	if caps.SupportsMultiRegion {
		newMembers, removed, err = f.AssignMultiRegion(ctx, tag, currentMembers, nil)
	} else {
		newMembers, removed, err = f.AssignSingleRegion(ctx, tag, currentMembers)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	primary := f.resolvePrimary(currentPrimary, newMembers)
	identifiers := make(map[uint32]string, len(newMembers))
	for _, m := range newMembers {
		identifiers[m] = f.serversByID[m].Identifier
	}
	removedIdentifiers := make([]string, 0, len(removed))
	for _, r := range removed {
		if srv, ok := f.serversByID[r]; ok {
			removedIdentifiers = append(removedIdentifiers, srv.Identifier)
		}
	}
	f.mu.Unlock()

	if err := f.store.Mappings.Upsert(ctx, tag, customerID, primary, newMembers); err != nil {
		return err
	}

	cust := f.store.Customers.GetByID(ctx, tag, customerID)

	for _, m := range newMembers {
		isPrimary := m == primary
		body, err := f.buildCustomerConfig(ctx, tag, customerID, isPrimary)
		if err != nil {
			f.log.Error("fleet: activate: build customer config", zap.Uint32("customer_id", customerID), zap.Error(err))
			continue
		}
		f.post.PostJSON(identifiers[m], "/customer/add", body, fmt.Sprintf("customer add customer=%d server=%d", customerID, m), nil)
		if cust.Paused {
			f.post.PostJSON(identifiers[m], "/customer/pause", customerPauseBody{CustomerID: customerID, Pause: true}, fmt.Sprintf("customer pause customer=%d server=%d", customerID, m), nil)
		}
	}
	for _, identifier := range removedIdentifiers {
		f.post.PostJSON(identifier, "/customer/remove", customerRemoveBody{CustomerID: customerID}, fmt.Sprintf("customer remove customer=%d", customerID), nil)
	}

	return nil
}

// Deactivate clears a customer's mapping and posts /customer/remove to each
// formerly assigned worker (§4.7).
func (f *Fleet) Deactivate(ctx context.Context, customerID uint32) error {
	tag := "fleet-deactivate"

	existing, err := f.store.Mappings.Get(ctx, tag, customerID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	members := store.ParseMembers(existing.Members)

	if err := f.store.Mappings.Delete(ctx, tag, customerID); err != nil {
		return err
	}

	f.mu.Lock()
	identifiers := make([]string, 0, len(members))
	for _, m := range members {
		if srv, ok := f.serversByID[m]; ok {
			identifiers = append(identifiers, srv.Identifier)
		}
	}
	f.mu.Unlock()

	for _, identifier := range identifiers {
		f.post.PostJSON(identifier, "/customer/remove", customerRemoveBody{CustomerID: customerID}, fmt.Sprintf("customer remove customer=%d", customerID), nil)
	}
	return nil
}

// SetPaused posts /customer/pause to every assigned worker, then persists
// the customer's paused flag (§4.7).
func (f *Fleet) SetPaused(ctx context.Context, tag string, customerID uint32, paused bool) error {
	existing, err := f.store.Mappings.Get(ctx, tag, customerID)
	if err != nil {
		return err
	}
	if existing != nil {
		members := store.ParseMembers(existing.Members)
		f.mu.Lock()
		identifiers := make([]string, 0, len(members))
		for _, m := range members {
			if srv, ok := f.serversByID[m]; ok {
				identifiers = append(identifiers, srv.Identifier)
			}
		}
		f.mu.Unlock()
		for _, identifier := range identifiers {
			f.post.PostJSON(identifier, "/customer/pause", customerPauseBody{CustomerID: customerID, Pause: paused}, fmt.Sprintf("customer pause customer=%d", customerID), nil)
		}
	}
	return f.store.Customers.SetPaused(ctx, tag, customerID, paused)
}

// ReassignWorkload moves a worker's customers to another worker, or off a
// failing worker entirely (§4.7). If customers is empty, fromID is flipped
// to INACTIVE first.
func (f *Fleet) ReassignWorkload(ctx context.Context, tag string, fromID uint32, customers []uint32, toID uint32) error {
	if len(customers) == 0 {
		if err := f.ChangeStatus(ctx, tag, fromID, db.ServerInactive); err != nil {
			return err
		}
		mappings, err := f.store.Mappings.ListAll(ctx, tag)
		if err != nil {
			return err
		}
		for _, m := range mappings {
			for _, memberID := range store.ParseMembers(m.Members) {
				if memberID == fromID {
					customers = append(customers, m.CustomerID)
					break
				}
			}
		}
	}

	for _, customerID := range customers {
		existing, err := f.store.Mappings.Get(ctx, tag, customerID)
		if err != nil || existing == nil {
			continue
		}
		members := store.ParseMembers(existing.Members)

		f.mu.Lock()
		toActive := toID != 0 && f.serversByID[toID].Status == db.ServerActive
		f.mu.Unlock()

		if toActive {
			for i, m := range members {
				if m == fromID {
					members[i] = toID
				}
			}
			primary := existing.PrimaryID
			if primary == fromID {
				primary = toID
			}
			if err := f.store.Mappings.Upsert(ctx, tag, customerID, primary, members); err != nil {
				f.log.Error("fleet: reassign: upsert", zap.Uint32("customer_id", customerID), zap.Error(err))
				continue
			}
		}

		if err := f.Activate(ctx, customerID); err != nil {
			f.log.Error("fleet: reassign: activate", zap.Uint32("customer_id", customerID), zap.Error(err))
		}
	}
	return nil
}

// buildCustomerConfig assembles the "/customer/add" wire body of spec §4.8.
func (f *Fleet) buildCustomerConfig(ctx context.Context, tag string, customerID uint32, isPrimary bool) (customerAddBody, error) {
	caps, err := f.store.Customers.Capabilities(ctx, tag, customerID)
	if err != nil {
		return customerAddBody{}, err
	}

	monitors, err := f.store.Monitors.ListByCustomer(ctx, tag, customerID)
	if err != nil {
		return customerAddBody{}, err
	}

	body := customerAddBody{
		PollingInterval: caps.PollingInterval,
		Latency:         caps.SupportsLatencyTracking,
		MultiRegion:     caps.SupportsMultiRegion,
		HostSchemes:     make(map[uint32]hostSchemeWire),
	}
	if isPrimary {
		body.Ping = caps.SupportsPingCheck
		body.SSLExpiration = caps.SupportsSSLCheck
	}

	for _, m := range monitors {
		hsw, ok := body.HostSchemes[m.HostSchemeID]
		if !ok {
			hs := f.store.HostSchemes.GetByID(ctx, tag, m.HostSchemeID)
			hsw = hostSchemeWire{URL: hs.URL(), Monitors: make(map[uint32]monitorWire)}
		}

		mw := monitorWire{URI: m.Slug}
		if m.Method != db.MethodGet {
			mw.Method = strings.ToLower(string(m.Method))
		}
		if m.ContentCheckMode != db.ContentCheckNone {
			mw.ContentCheckMode = strings.ToLower(string(m.ContentCheckMode))
		}
		if len(m.Keywords) > 0 {
			list, err := keywords.Decode(m.Keywords)
			if err == nil {
				mw.Keywords = encodeKeywordList(list)
			}
		}
		if m.PostContentType != db.PostContentText {
			mw.PostContentType = strings.ToLower(string(m.PostContentType))
		}
		mw.PostUserAgent = m.UserAgent
		mw.PostContent = encodeBase64(m.PostContent)

		hsw.Monitors[m.ID] = mw
		body.HostSchemes[m.HostSchemeID] = hsw
	}

	return body, nil
}
