package disposition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// fakeHistory is an in-memory History used only by these tests.
type fakeHistory struct {
	byMonitor    map[uint32]*db.Event
	byHostScheme map[uint32]*db.Event
}

func (f *fakeHistory) LatestByMonitorKinds(_ context.Context, _ string, monitorID uint32, _ []db.EventKind) (*db.Event, error) {
	return f.byMonitor[monitorID], nil
}

func (f *fakeHistory) LatestByHostSchemeKinds(_ context.Context, _ string, hostSchemeID uint32, _ []db.EventKind) (*db.Event, error) {
	return f.byHostScheme[hostSchemeID], nil
}

func TestDecideUnknownKindFails(t *testing.T) {
	hist := &fakeHistory{}
	d := Decide(context.Background(), hist, "t", db.EventInvalid, db.StatusUnknown, 1, 1, "")
	assert.Equal(t, Failed, d)
}

func TestDecideCustomerDefinedAlwaysReports(t *testing.T) {
	hist := &fakeHistory{}
	for _, k := range []db.EventKind{db.EventCustomer1, db.EventTransaction, db.EventSupportRequest} {
		d := Decide(context.Background(), hist, "t", k, db.StatusWorking, 1, 1, "")
		assert.Equal(t, RecordAndReport, d, k)
	}
}

func TestDecideWorkingEmptyHistory(t *testing.T) {
	hist := &fakeHistory{byMonitor: map[uint32]*db.Event{}}
	require.Equal(t, RecordOnly, Decide(context.Background(), hist, "t", db.EventWorking, db.StatusUnknown, 1, 1, ""))
	require.Equal(t, Ignore, Decide(context.Background(), hist, "t", db.EventWorking, db.StatusWorking, 1, 1, ""))
}

func TestDecideWorkingAfterNoResponseReports(t *testing.T) {
	hist := &fakeHistory{byMonitor: map[uint32]*db.Event{1: {Kind: db.EventNoResponse}}}
	d := Decide(context.Background(), hist, "t", db.EventWorking, db.StatusFailed, 1, 1, "")
	assert.Equal(t, RecordAndReport, d)
}

func TestDecideContentChangedSameHashIgnored(t *testing.T) {
	hist := &fakeHistory{byMonitor: map[uint32]*db.Event{1: {Kind: db.EventContentChanged, Hash: "AAAA"}}}
	d := Decide(context.Background(), hist, "t", db.EventContentChanged, db.StatusWorking, 1, 1, "AAAA")
	assert.Equal(t, Ignore, d)
}

func TestDecideContentChangedDifferentHashReports(t *testing.T) {
	hist := &fakeHistory{byMonitor: map[uint32]*db.Event{1: {Kind: db.EventContentChanged, Hash: "AAAA"}}}
	d := Decide(context.Background(), hist, "t", db.EventContentChanged, db.StatusWorking, 1, 1, "BBBB")
	assert.Equal(t, RecordAndReport, d)
}

func TestDecideContentChangedEmptyHistoryReports(t *testing.T) {
	hist := &fakeHistory{byMonitor: map[uint32]*db.Event{}}
	d := Decide(context.Background(), hist, "t", db.EventContentChanged, db.StatusWorking, 1, 1, "AAAA")
	assert.Equal(t, RecordAndReport, d)
}

func TestDecideSSLEmptyHistoryReports(t *testing.T) {
	hist := &fakeHistory{byHostScheme: map[uint32]*db.Event{}}
	d := Decide(context.Background(), hist, "t", db.EventSSLCertificateExpiring, db.StatusWorking, 1, 7, "")
	assert.Equal(t, RecordAndReport, d)
}

func TestDecideSSLSameKindRepeatedIgnored(t *testing.T) {
	hist := &fakeHistory{byHostScheme: map[uint32]*db.Event{7: {Kind: db.EventSSLCertificateExpiring}}}
	d := Decide(context.Background(), hist, "t", db.EventSSLCertificateExpiring, db.StatusWorking, 1, 7, "")
	assert.Equal(t, Ignore, d)
}

func TestDecideSSLTransition(t *testing.T) {
	hist := &fakeHistory{byHostScheme: map[uint32]*db.Event{7: {Kind: db.EventSSLCertificateExpiring}}}
	d := Decide(context.Background(), hist, "t", db.EventSSLCertificateRenewed, db.StatusWorking, 1, 7, "")
	assert.Equal(t, RecordAndReport, d)
}
