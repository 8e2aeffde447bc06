// Package disposition implements the Event Disposition decision (spec §4.3):
// given (kind, worker-reported status, monitor id, content hash), decide
// whether an incoming worker report should be ignored, recorded silently, or
// recorded and reported upstream.
//
// Per Design Notes §9, the checker family is modeled as a tagged-variant
// lookup table keyed by event kind rather than a class hierarchy: each
// variant is pure data plus two small functions.
package disposition

import (
	"context"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// Disposition is the decision yielded for one incoming report.
type Disposition int

const (
	Failed Disposition = iota
	Ignore
	RecordOnly
	RecordAndReport
)

func (d Disposition) String() string {
	switch d {
	case Ignore:
		return "IGNORE"
	case RecordOnly:
		return "RECORD_ONLY"
	case RecordAndReport:
		return "RECORD_AND_REPORT"
	default:
		return "FAILED"
	}
}

// History is the narrow slice of the Store the disposition table needs to
// look up recent events — kept as an interface so tests can supply a fake
// without a database.
type History interface {
	LatestByMonitorKinds(ctx context.Context, tag string, monitorID uint32, kinds []db.EventKind) (*db.Event, error)
	LatestByHostSchemeKinds(ctx context.Context, tag string, hostSchemeID uint32, kinds []db.EventKind) (*db.Event, error)
}

// family identifies which query shape a kind's checker uses.
type family int

const (
	familyPerMonitor family = iota
	familyPerHostScheme
	familyCustomerDefined
)

// checker is one variant of the tagged family: a predicate describing which
// rows are relevant, and an interpret function translating the latest
// matching row (or its absence) into a Disposition.
type checker struct {
	family     family
	familyKinds []db.EventKind // the full set of sibling kinds sharing this checker's query
	interpret  func(latest *db.Event, kind db.EventKind, workerStatus db.MonitorStatusValue, hash string) Disposition
}

// defaultInterpret implements the default checker (§4.3 step 2: "IGNORE if
// the latest row's kind equals kind, else RECORD_AND_REPORT"). A host/scheme
// with no prior SSL event reports on its first transition — the sweeper's
// first tick below threshold must still produce one EXPIRING event.
func defaultInterpret(latest *db.Event, kind db.EventKind, _ db.MonitorStatusValue, _ string) Disposition {
	if latest == nil {
		return RecordAndReport
	}
	if latest.Kind == kind {
		return Ignore
	}
	return RecordAndReport
}

func hashSensitiveInterpret(latest *db.Event, kind db.EventKind, _ db.MonitorStatusValue, hash string) Disposition {
	if latest == nil {
		return RecordAndReport
	}
	if latest.Kind != kind {
		return RecordAndReport
	}
	if latest.Hash == hash {
		return Ignore
	}
	return RecordAndReport
}

func workingInterpret(latest *db.Event, _ db.EventKind, workerStatus db.MonitorStatusValue, _ string) Disposition {
	if latest == nil {
		if workerStatus == db.StatusUnknown {
			return RecordOnly
		}
		return Ignore
	}
	if latest.Kind == db.EventWorking {
		return Ignore
	}
	return RecordAndReport
}

func noResponseInterpret(latest *db.Event, kind db.EventKind, status db.MonitorStatusValue, hash string) Disposition {
	if latest == nil {
		return RecordAndReport
	}
	return defaultInterpret(latest, kind, status, hash)
}

var perMonitorKinds = []db.EventKind{db.EventWorking, db.EventNoResponse, db.EventContentChanged, db.EventKeywords}
var perHostSchemeKinds = []db.EventKind{db.EventSSLCertificateExpiring, db.EventSSLCertificateRenewed}

// table is the lookup, constructed once at package init, per Design Notes §9.
var table = map[db.EventKind]checker{
	db.EventWorking: {
		family: familyPerMonitor, familyKinds: perMonitorKinds, interpret: workingInterpret,
	},
	db.EventNoResponse: {
		family: familyPerMonitor, familyKinds: perMonitorKinds, interpret: noResponseInterpret,
	},
	db.EventContentChanged: {
		family: familyPerMonitor, familyKinds: perMonitorKinds, interpret: hashSensitiveInterpret,
	},
	db.EventKeywords: {
		family: familyPerMonitor, familyKinds: perMonitorKinds, interpret: hashSensitiveInterpret,
	},
	db.EventSSLCertificateExpiring: {
		family: familyPerHostScheme, familyKinds: perHostSchemeKinds, interpret: defaultInterpret,
	},
	db.EventSSLCertificateRenewed: {
		family: familyPerHostScheme, familyKinds: perHostSchemeKinds, interpret: defaultInterpret,
	},
}

func init() {
	customerDefined := []db.EventKind{
		db.EventCustomer1, db.EventCustomer2, db.EventCustomer3, db.EventCustomer4, db.EventCustomer5,
		db.EventCustomer6, db.EventCustomer7, db.EventCustomer8, db.EventCustomer9, db.EventCustomer10,
		db.EventTransaction, db.EventInquiry, db.EventSupportRequest, db.EventStorageLimitReached,
	}
	for _, k := range customerDefined {
		table[k] = checker{family: familyCustomerDefined}
	}
}

// Decide yields the disposition for one incoming report. monitorID and
// hostSchemeID must both be supplied by the caller (Event Processor), which
// has already resolved the monitor; hostSchemeID is only consulted for the
// per-host-scheme family.
func Decide(ctx context.Context, hist History, tag string, kind db.EventKind, workerStatus db.MonitorStatusValue, monitorID, hostSchemeID uint32, hash string) Disposition {
	c, ok := table[kind]
	if !ok {
		return Failed
	}

	if c.family == familyCustomerDefined {
		return RecordAndReport
	}

	var (
		latest *db.Event
		err    error
	)
	switch c.family {
	case familyPerMonitor:
		latest, err = hist.LatestByMonitorKinds(ctx, tag, monitorID, c.familyKinds)
	case familyPerHostScheme:
		latest, err = hist.LatestByHostSchemeKinds(ctx, tag, hostSchemeID, c.familyKinds)
	}
	if err != nil {
		return Failed
	}

	return c.interpret(latest, kind, workerStatus, hash)
}
