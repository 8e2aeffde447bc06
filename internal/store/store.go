package store

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListOptions bounds a paginated list query.
type ListOptions struct {
	Limit  int
	Offset int
}

// clampLimit mirrors the teacher's pagination helper defaults: 20 default, 100 cap.
func (o ListOptions) clampLimit() int {
	switch {
	case o.Limit <= 0:
		return 20
	case o.Limit > 100:
		return 100
	default:
		return o.Limit
	}
}

// Store bundles every per-entity repository behind the single transactional
// *gorm.DB handed to it by the composition root. Every operation accepts a
// caller-supplied tag purely for log correlation (zap.String("tag", …)) —
// GORM's own pool serializes cursor usage per call, so no separate
// connection-per-tag pool is needed (see DESIGN.md).
type Store struct {
	db *gorm.DB

	Customers   *CustomerStore
	HostSchemes *HostSchemeStore
	Monitors    *MonitorStore
	Events      *EventStore
	Servers     *ServerStore
	Mappings    *MappingStore
	Resources   *ResourceStore
	Credentials *CredentialStore
}

// DB exposes the underlying connection for callers that need to seed or
// inspect rows outside any one sub-store's repository surface (tests, cmd/seed).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// New wires every sub-store onto the given database handle.
func New(db *gorm.DB, log *zap.Logger) *Store {
	named := log.Named("store")
	return &Store{
		db:          db,
		Customers:   &CustomerStore{db: db, log: named},
		HostSchemes: &HostSchemeStore{db: db, log: named},
		Monitors:    &MonitorStore{db: db, log: named},
		Events:      &EventStore{db: db, log: named},
		Servers:     &ServerStore{db: db, log: named},
		Mappings:    &MappingStore{db: db, log: named},
		Resources:   &ResourceStore{db: db, log: named},
		Credentials: &CredentialStore{db: db, log: named},
	}
}
