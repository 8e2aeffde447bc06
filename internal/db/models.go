package db

import (
	"time"
)

// EventKind enumerates the upper-snake wire strings used for events in both
// directions (§6). Nothing maps an unknown kind to EventInvalid; the REST
// adapter rejects unknown kinds with a 400.
type EventKind string

const (
	EventInvalid                EventKind = "INVALID"
	EventWorking                EventKind = "WORKING"
	EventNoResponse             EventKind = "NO_RESPONSE"
	EventContentChanged         EventKind = "CONTENT_CHANGED"
	EventKeywords               EventKind = "KEYWORDS"
	EventSSLCertificateExpiring EventKind = "SSL_CERTIFICATE_EXPIRING"
	EventSSLCertificateRenewed  EventKind = "SSL_CERTIFICATE_RENEWED"
	EventTransaction            EventKind = "TRANSACTION"
	EventInquiry                EventKind = "INQUIRY"
	EventSupportRequest         EventKind = "SUPPORT_REQUEST"
	EventStorageLimitReached    EventKind = "STORAGE_LIMIT_REACHED"
	EventCustomer1              EventKind = "CUSTOMER_1"
	EventCustomer2              EventKind = "CUSTOMER_2"
	EventCustomer3              EventKind = "CUSTOMER_3"
	EventCustomer4              EventKind = "CUSTOMER_4"
	EventCustomer5              EventKind = "CUSTOMER_5"
	EventCustomer6              EventKind = "CUSTOMER_6"
	EventCustomer7              EventKind = "CUSTOMER_7"
	EventCustomer8              EventKind = "CUSTOMER_8"
	EventCustomer9              EventKind = "CUSTOMER_9"
	EventCustomer10             EventKind = "CUSTOMER_10"
)

// MonitorStatusValue enumerates the derived per-monitor status (§3).
type MonitorStatusValue string

const (
	StatusUnknown MonitorStatusValue = "UNKNOWN"
	StatusWorking MonitorStatusValue = "WORKING"
	StatusFailed  MonitorStatusValue = "FAILED"
)

// ServerStatus enumerates worker lifecycle states (§3, §4.7).
type ServerStatus string

const (
	ServerActive   ServerStatus = "ACTIVE"
	ServerInactive ServerStatus = "INACTIVE"
	ServerDefunct  ServerStatus = "DEFUNCT"
)

// Method enumerates the supported monitor HTTP methods (§3).
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodPatch   Method = "PATCH"
)

// ContentCheckMode enumerates monitor content-matching strategies (§3).
type ContentCheckMode string

const (
	ContentCheckNone              ContentCheckMode = "NO_CHECK"
	ContentCheckContentMatch      ContentCheckMode = "CONTENT_MATCH"
	ContentCheckAnyKeywords       ContentCheckMode = "ANY_KEYWORDS"
	ContentCheckAllKeywords       ContentCheckMode = "ALL_KEYWORDS"
	ContentCheckSmartContentMatch ContentCheckMode = "SMART_CONTENT_MATCH"
)

// PostContentType enumerates the POST body content types a monitor may send (§3).
type PostContentType string

const (
	PostContentJSON PostContentType = "JSON"
	PostContentXML  PostContentType = "XML"
	PostContentText PostContentType = "TEXT"
)

// Customer identifies a tenant owning a set of monitors (§3). Id zero is the
// invalid sentinel — never assigned to a real row.
type Customer struct {
	ID     uint32 `gorm:"primaryKey;autoIncrement"`
	Active bool   `gorm:"not null;default:true"`
	Paused bool   `gorm:"not null;default:false"`
}

// CustomerCapabilities is the one-to-one capability/policy row for a
// Customer, split out per original_source/dbc/include/monitor_updater.h
// (capabilities are read independently of the customer row).
type CustomerCapabilities struct {
	CustomerID              uint32 `gorm:"primaryKey"`
	SupportsPost            bool   `gorm:"not null;default:false"`
	SupportsContentCheck    bool   `gorm:"not null;default:false"`
	SupportsKeywordCheck    bool   `gorm:"not null;default:false"`
	SupportsPingCheck       bool   `gorm:"not null;default:false"`
	SupportsSSLCheck        bool   `gorm:"not null;default:false"`
	SupportsLatencyTracking bool   `gorm:"not null;default:false"`
	SupportsMaintenanceMode bool   `gorm:"not null;default:false"`
	SupportsMultiRegion     bool   `gorm:"not null;default:false"`
	PollingInterval         uint32 `gorm:"not null;default:60"`
}

// HostScheme is the (scheme, authority) prefix shared by all monitors on the
// same origin for one customer (§3). SSLExpirationTimestamp is a Unix
// timestamp; 0 means unknown.
type HostScheme struct {
	ID                     uint32 `gorm:"primaryKey;autoIncrement"`
	CustomerID             uint32 `gorm:"not null;index"`
	Scheme                 string `gorm:"not null"` // http, https, ftp, sftp
	Authority              string `gorm:"not null"` // host[:port]
	SSLExpirationTimestamp int64  `gorm:"not null;default:0"`
}

// URL reconstructs "scheme://authority".
func (h HostScheme) URL() string {
	return h.Scheme + "://" + h.Authority
}

// Monitor is a single configured probe target (§3).
//
// (HostSchemeID, Slug) uniquely identifies a monitor within a customer; the
// Store enforces this via a unique index rather than an application-level
// retry loop.
type Monitor struct {
	ID               uint32           `gorm:"primaryKey;autoIncrement"`
	CustomerID       uint32           `gorm:"not null;index"`
	HostSchemeID     uint32           `gorm:"not null;index:idx_monitor_hostscheme_slug,unique,priority:1"`
	UserOrdering     uint16           `gorm:"not null"`
	Slug             string           `gorm:"not null;index:idx_monitor_hostscheme_slug,unique,priority:2"`
	Method           Method           `gorm:"not null;default:'GET'"`
	ContentCheckMode ContentCheckMode `gorm:"not null;default:'NO_CHECK'"`
	Keywords         []byte           `gorm:"type:blob"` // length-prefixed codec, see internal/keywords
	PostContentType  PostContentType  `gorm:"not null;default:'TEXT'"`
	UserAgent        string           `gorm:"default:''"`
	PostContent      []byte           `gorm:"type:blob"`
}

// Event is an immutable durable record of a notable probe outcome or
// administrative action (§3). Timestamp is seconds in the Zoran epoch.
type Event struct {
	ID         uint32    `gorm:"primaryKey;autoIncrement"`
	MonitorID  uint32    `gorm:"not null;index"`
	CustomerID uint32    `gorm:"not null;index"`
	Timestamp  uint32    `gorm:"not null;index"`
	Kind       EventKind `gorm:"not null;index"`
	Message    string    `gorm:"type:text;not null;default:''"`
	Hash       string    `gorm:"default:''"` // base64, may be empty
	CreatedAt  time.Time `gorm:"not null"`
}

// MonitorStatus is one row per monitor holding its derived status (§3, §4.1).
type MonitorStatus struct {
	MonitorID uint32             `gorm:"primaryKey"`
	Status    MonitorStatusValue `gorm:"not null;default:'UNKNOWN'"`
	UpdatedAt time.Time          `gorm:"not null"`
}

// Region is a namespace grouping workers (§3).
type Region struct {
	ID uint32 `gorm:"primaryKey;autoIncrement"`
}

// Server is a polling worker (§3). Only DEFUNCT servers may be deleted; only
// INACTIVE or DEFUNCT servers may be modified (status change excepted).
type Server struct {
	ID         uint32       `gorm:"primaryKey;autoIncrement"`
	RegionID   uint32       `gorm:"not null;index"`
	Identifier string       `gorm:"not null;uniqueIndex"` // host/address string
	Status     ServerStatus `gorm:"not null;default:'INACTIVE'"`
	CPULoad    float64      `gorm:"not null;default:0"`
}

// CustomerMapping is the persisted form of a customer's worker assignment
// (§3, §4.7). Members is a comma-separated list of server ids (kept as a
// simple scalar column — GORM cannot resolve a slice of uint32 as a
// relation, the same constraint the teacher notes for its own UUID PKs).
type CustomerMapping struct {
	CustomerID uint32 `gorm:"primaryKey"`
	PrimaryID  uint32 `gorm:"not null"`
	Members    string `gorm:"type:text;not null;default:''"`
}

// ActiveResources is a per-customer bitset over a 256-valued resource type
// space, persisted so the Resource Cache can be rebuilt after a restart (§3).
type ActiveResources struct {
	CustomerID uint32 `gorm:"primaryKey"`
	Bitset     []byte `gorm:"type:blob"` // 32 bytes, one bit per value type
}

// Resource is one sample of a per-customer metric stream (§3). Primary key
// is (CustomerID, ValueType, Timestamp1); Timestamp2 is the intra-hour
// remainder, matching the split the source schema uses for compact storage.
type Resource struct {
	CustomerID uint32  `gorm:"primaryKey;autoIncrement:false"`
	ValueType  uint8   `gorm:"primaryKey;autoIncrement:false"`
	Timestamp1 uint32  `gorm:"primaryKey;autoIncrement:false"` // t / 3600
	Timestamp2 uint32  `gorm:"not null"`                       // t % 3600
	Value      float64 `gorm:"not null"`
}

// DispatcherCredential stores the shared default outbound credential used
// by the Outbound Dispatcher (§4.2). Encrypted at rest — this is the one
// sensitive value this system persists, following the teacher's use of
// EncryptedString for secrets.
type DispatcherCredential struct {
	Key   string          `gorm:"primaryKey"`
	Value EncryptedString `gorm:"type:text;not null"`
}
