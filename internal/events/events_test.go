package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

type fakePoster struct {
	posts []string
}

func (f *fakePoster) PostJSON(identifier, endpoint string, v interface{}, logText string, callback func([]byte, error)) error {
	f.posts = append(f.posts, logText)
	if callback != nil {
		callback(nil, nil)
	}
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := db.New(db.Config{Driver: "sqlite", DSN: "file::memory:?cache=shared&_pragma=foreign_keys(1)", Logger: zap.NewNop()})
	require.NoError(t, err)
	return store.New(gdb, zap.NewNop())
}

func seedMonitor(t *testing.T, st *store.Store) (customerID, monitorID uint32) {
	t.Helper()
	ctx := context.Background()

	cust := &db.Customer{Active: true}
	require.NoError(t, st.DB().Create(cust).Error)

	hs := &db.HostScheme{CustomerID: cust.ID, Scheme: "https", Authority: "example.com"}
	hsID, err := st.HostSchemes.Create(ctx, "t", hs)
	require.NoError(t, err)

	m := &db.Monitor{CustomerID: cust.ID, HostSchemeID: hsID, Slug: "/"}
	mID, err := st.Monitors.Create(ctx, "t", m)
	require.NoError(t, err)

	return cust.ID, mID
}

func TestReportEventUnknownMonitorSilentlyIgnored(t *testing.T) {
	st := newTestStore(t)
	poster := &fakePoster{}
	p := New(Config{}, st, poster, zap.NewNop())

	err := p.ReportEvent(context.Background(), "t", 1, Report{MonitorID: 99999, Kind: db.EventWorking, WorkerStatus: db.StatusUnknown})
	require.NoError(t, err)
	require.Empty(t, poster.posts)
}

func TestReportEventRecordsAndNotifiesOnContentChange(t *testing.T) {
	st := newTestStore(t)
	customerID, monitorID := seedMonitor(t, st)
	poster := &fakePoster{}
	p := New(Config{}, st, poster, zap.NewNop())

	ctx := context.Background()
	err := p.ReportEvent(ctx, "t", customerID, Report{
		MonitorID: monitorID, Kind: db.EventContentChanged, WorkerStatus: db.StatusWorking, Hash: "AAAA",
	})
	require.NoError(t, err)
	require.Len(t, poster.posts, 1)

	list, err := st.Events.ListByMonitor(ctx, "t", monitorID, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestReportEventDuplicateContentHashNotReNotified(t *testing.T) {
	st := newTestStore(t)
	customerID, monitorID := seedMonitor(t, st)
	poster := &fakePoster{}
	p := New(Config{}, st, poster, zap.NewNop())

	ctx := context.Background()
	r := Report{MonitorID: monitorID, Kind: db.EventContentChanged, WorkerStatus: db.StatusWorking, Hash: "AAAA"}
	require.NoError(t, p.ReportEvent(ctx, "t", customerID, r))
	require.NoError(t, p.ReportEvent(ctx, "t", customerID, r))

	require.Len(t, poster.posts, 1)
}

func countKind(t *testing.T, st *store.Store, monitorID uint32, kind db.EventKind) int {
	t.Helper()
	list, err := st.Events.ListByMonitor(context.Background(), "t", monitorID, store.ListOptions{})
	require.NoError(t, err)
	n := 0
	for _, ev := range list {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestSweepOnceTransitionsExpiringThenRenewed(t *testing.T) {
	st := newTestStore(t)
	_, monitorID := seedMonitor(t, st)

	ctx := context.Background()
	m := st.Monitors.GetByID(ctx, "t", monitorID)
	require.NotZero(t, m.ID)

	poster := &fakePoster{}
	p := New(Config{SSLThreshold: 72 * time.Hour}, st, poster, zap.NewNop())

	now := time.Now()
	almostExpired := now.Add(72*time.Hour - time.Second).Unix()
	require.NoError(t, st.HostSchemes.UpdateSSLExpiration(ctx, "t", m.HostSchemeID, almostExpired))

	p.sweepOnce(ctx, "t")
	require.Equal(t, 1, countKind(t, st, monitorID, db.EventSSLCertificateExpiring))
	require.Equal(t, 0, countKind(t, st, monitorID, db.EventSSLCertificateRenewed))

	// A second tick against the same timestamp must not duplicate the event.
	p.sweepOnce(ctx, "t")
	require.Equal(t, 1, countKind(t, st, monitorID, db.EventSSLCertificateExpiring))

	farFuture := now.Add(30 * 24 * time.Hour).Unix()
	require.NoError(t, st.HostSchemes.UpdateSSLExpiration(ctx, "t", m.HostSchemeID, farFuture))

	p.sweepOnce(ctx, "t")
	require.Equal(t, 1, countKind(t, st, monitorID, db.EventSSLCertificateExpiring))
	require.Equal(t, 1, countKind(t, st, monitorID, db.EventSSLCertificateRenewed))
}
