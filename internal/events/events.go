// Package events implements the Event Processor (spec §4.4): the serialized
// pipeline that funnels worker reports through disposition, writes them to
// the Store, updates per-monitor status, and hands RECORD_AND_REPORT events
// to the Outbound Dispatcher. It also runs the SSL expiration sweeper.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/disposition"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

// Poster is the narrow slice of the Outbound Dispatcher the processor needs.
type Poster interface {
	PostJSON(identifier, endpoint string, v interface{}, logText string, callback func(resp []byte, err error)) error
}

// Config configures an EventProcessor.
type Config struct {
	// NotificationIdentifier is the dispatcher identifier upstream event
	// notifications are posted to (spec §4.4: "posts an upstream
	// notification"; §4.2 keys every post by a dispatcher identifier).
	NotificationIdentifier string
	// NotificationEndpoint is the path appended when posting a notification.
	NotificationEndpoint string
	// SweepInterval is the SSL sweeper's tick period (spec default ~2s).
	SweepInterval time.Duration
	// SSLThreshold is the expiration horizon below which a host/scheme is
	// considered "expiring soon" (spec default 72h).
	SSLThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.NotificationEndpoint == "" {
		c.NotificationEndpoint = "/event/notify"
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 2 * time.Second
	}
	if c.SSLThreshold <= 0 {
		c.SSLThreshold = 72 * time.Hour
	}
	return c
}

// Report is one incoming worker observation, the reportEvent parameters of
// spec §4.4.
type Report struct {
	MonitorID    uint32
	UnixTs       int64
	Kind         db.EventKind
	WorkerStatus db.MonitorStatusValue
	Message      string
	Hash         string
}

// notificationBody is the upstream notification payload (spec §4.4: customer
// id, monitor id, event type (lower-case tag), path, authority, message,
// timestamp).
type notificationBody struct {
	CustomerID uint32 `json:"customer_id"`
	MonitorID  uint32 `json:"monitor_id"`
	EventType  string `json:"event_type"`
	Path       string `json:"path"`
	Authority  string `json:"authority"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

// EventProcessor is the Event Processor. The zero value is not usable; build
// with New.
type EventProcessor struct {
	cfg    Config
	store  *store.Store
	poster Poster
	log    *zap.Logger

	// mu is the process-wide serializing lock of spec §4.4: disposition and
	// write-then-notify happen inside one critical section so duplicate
	// suppression is race-free.
	mu sync.Mutex

	// expiring tracks, per host/scheme id, whether the last sweep saw it
	// below the SSL threshold — suppresses duplicate events across ticks.
	sweepMu  sync.Mutex
	expiring map[uint32]bool

	cron gocron.Scheduler
	job  gocron.Job
}

// New constructs an EventProcessor.
func New(cfg Config, st *store.Store, poster Poster, log *zap.Logger) *EventProcessor {
	cfg = cfg.withDefaults()
	return &EventProcessor{
		cfg:      cfg,
		store:    st,
		poster:   poster,
		log:      log.Named("events"),
		expiring: make(map[uint32]bool),
	}
}

// ReportEvent runs the single-report pipeline of spec §4.4.
func (p *EventProcessor) ReportEvent(ctx context.Context, tag string, customerID uint32, r Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reportLocked(ctx, tag, customerID, r)
}

// ReportEvents runs a batch of reports under one lock acquisition, amortizing
// the serializing-lock overhead across the batch (original_source's
// reportMultipleEvents bulk-ingest path, not present in the single-report
// contract but not in conflict with it).
func (p *EventProcessor) ReportEvents(ctx context.Context, tag string, customerID uint32, reports []Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, r := range reports {
		if err := p.reportLocked(ctx, tag, customerID, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *EventProcessor) reportLocked(ctx context.Context, tag string, customerID uint32, r Report) error {
	monitor := p.store.Monitors.GetByID(ctx, tag, r.MonitorID)
	if monitor.ID == 0 {
		// Unknown monitor: silently accepted per spec §4.4, to avoid a
		// retry storm racing a delete against an in-flight worker report.
		p.log.Debug("events: report for unknown monitor, ignoring", zap.String("tag", tag), zap.Uint32("monitor_id", r.MonitorID))
		return nil
	}

	d := disposition.Decide(ctx, p.store.Events, tag, r.Kind, r.WorkerStatus, monitor.ID, monitor.HostSchemeID, r.Hash)
	if d == disposition.Failed || d == disposition.Ignore {
		return nil
	}

	if _, err := p.store.Events.RecordEvent(ctx, tag, customerID, monitor.ID, r.UnixTs, r.Kind, r.Message, r.Hash); err != nil {
		return fmt.Errorf("events: report: %w", err)
	}

	if d != disposition.RecordAndReport {
		return nil
	}

	hs := p.store.HostSchemes.GetByID(ctx, tag, monitor.HostSchemeID)
	body := notificationBody{
		CustomerID: customerID,
		MonitorID:  monitor.ID,
		EventType:  strings.ToLower(string(r.Kind)),
		Path:       monitor.Slug,
		Authority:  hs.URL(),
		Message:    r.Message,
		Timestamp:  r.UnixTs,
	}
	if err := p.poster.PostJSON(p.cfg.NotificationIdentifier, p.cfg.NotificationEndpoint, body, fmt.Sprintf("event notify monitor=%d", monitor.ID), nil); err != nil {
		p.log.Warn("events: failed to post upstream notification", zap.String("tag", tag), zap.Error(err))
	}
	return nil
}

// StartSweeper starts the SSL expiration sweeper on its own gocron
// scheduler, grounded on internal/scheduler.Scheduler's gocron usage.
// Singleton mode guarantees a slow tick never overlaps the next.
func (p *EventProcessor) StartSweeper(ctx context.Context, tag string) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("events: create sweeper scheduler: %w", err)
	}

	job, err := s.NewJob(
		gocron.DurationJob(p.cfg.SweepInterval),
		gocron.NewTask(func() { p.sweepOnce(ctx, tag) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("ssl-sweep"),
	)
	if err != nil {
		return fmt.Errorf("events: schedule sweeper: %w", err)
	}

	p.cron = s
	p.job = job
	s.Start()
	p.log.Info("events: ssl sweeper started", zap.Duration("interval", p.cfg.SweepInterval), zap.Duration("threshold", p.cfg.SSLThreshold))
	return nil
}

// StopSweeper shuts down the sweeper, waiting for any in-flight tick.
func (p *EventProcessor) StopSweeper() error {
	if p.cron == nil {
		return nil
	}
	return p.cron.Shutdown()
}

func (p *EventProcessor) sweepOnce(ctx context.Context, tag string) {
	schemes, err := p.store.HostSchemes.ListAllWithExpiration(ctx, tag)
	if err != nil {
		p.log.Error("events: sweep: list host/schemes", zap.Error(err))
		return
	}

	now := time.Now()
	threshold := now.Add(p.cfg.SSLThreshold)

	for _, hs := range schemes {
		if hs.SSLExpirationTimestamp == 0 {
			continue
		}
		expiresAt := time.Unix(hs.SSLExpirationTimestamp, 0)
		belowThreshold := expiresAt.Before(threshold)

		p.sweepMu.Lock()
		wasExpiring := p.expiring[hs.ID]
		if belowThreshold == wasExpiring {
			p.sweepMu.Unlock()
			continue
		}
		p.expiring[hs.ID] = belowThreshold
		p.sweepMu.Unlock()

		monitors, err := p.store.Monitors.ListByHostScheme(ctx, tag, hs.ID)
		if err != nil || len(monitors) == 0 {
			continue
		}
		monitor := monitors[0]

		kind := db.EventSSLCertificateRenewed
		msg := "certificate renewed"
		if belowThreshold {
			kind = db.EventSSLCertificateExpiring
			msg = "certificate expiring soon"
		}

		if err := p.ReportEvent(ctx, tag, monitor.CustomerID, Report{
			MonitorID:    monitor.ID,
			UnixTs:       now.Unix(),
			Kind:         kind,
			WorkerStatus: db.StatusWorking,
			Message:      msg,
		}); err != nil {
			p.log.Error("events: sweep: report ssl event", zap.Uint32("host_scheme_id", hs.ID), zap.Error(err))
		}
	}
}
