package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/zoran"
)

// EventStore is the Store's Event and MonitorStatus repository.
type EventStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// statusTransitions maps an event kind to the derived monitor status it
// forces, per spec §4.1. Kinds absent from this map leave status unchanged.
var statusTransitions = map[db.EventKind]db.MonitorStatusValue{
	db.EventWorking:                db.StatusWorking,
	db.EventContentChanged:         db.StatusWorking,
	db.EventKeywords:               db.StatusWorking,
	db.EventSSLCertificateExpiring: db.StatusWorking,
	db.EventSSLCertificateRenewed:  db.StatusWorking,
	db.EventNoResponse:             db.StatusFailed,
	db.EventCustomer1:              db.StatusWorking,
	db.EventCustomer2:              db.StatusWorking,
	db.EventCustomer3:              db.StatusWorking,
	db.EventCustomer4:              db.StatusWorking,
	db.EventCustomer5:              db.StatusWorking,
	db.EventCustomer6:              db.StatusWorking,
	db.EventCustomer7:              db.StatusWorking,
	db.EventCustomer8:              db.StatusWorking,
	db.EventCustomer9:              db.StatusWorking,
	db.EventCustomer10:             db.StatusWorking,
	db.EventTransaction:            db.StatusWorking,
	db.EventInquiry:                db.StatusWorking,
	db.EventSupportRequest:         db.StatusWorking,
	db.EventStorageLimitReached:    db.StatusWorking,
}

// RecordEvent inserts the event row and, if the kind transitions the
// monitor's derived status, upserts monitor_status — all within a single
// transaction that rolls back on any sub-failure (§4.1).
func (s *EventStore) RecordEvent(ctx context.Context, tag string, customerID, monitorID uint32, unixTs int64, kind db.EventKind, msg, hash string) (*db.Event, error) {
	ev := &db.Event{
		MonitorID:  monitorID,
		CustomerID: customerID,
		Timestamp:  zoran.FromUnix(unixTs),
		Kind:       kind,
		Message:    msg,
		Hash:       hash,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ev).Error; err != nil {
			return fmt.Errorf("events: record: insert: %w", err)
		}
		newStatus, transitions := statusTransitions[kind]
		if !transitions {
			return nil
		}
		now := time.Now().UTC()
		result := tx.Model(&db.MonitorStatus{}).Where("monitor_id = ?", monitorID).Updates(map[string]interface{}{
			"status":     newStatus,
			"updated_at": now,
		})
		if result.Error != nil {
			return fmt.Errorf("events: record: update status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			if err := tx.Create(&db.MonitorStatus{MonitorID: monitorID, Status: newStatus, UpdatedAt: now}).Error; err != nil {
				return fmt.Errorf("events: record: insert status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("events: record", zap.String("tag", tag), zap.Error(err))
		return nil, err
	}
	return ev, nil
}

// LatestByMonitorKinds returns the single latest event for a monitor whose
// kind is one of the given kinds — the per-monitor checker family predicate
// of §4.3. Returns nil, nil when no such row exists.
func (s *EventStore) LatestByMonitorKinds(ctx context.Context, tag string, monitorID uint32, kinds []db.EventKind) (*db.Event, error) {
	var ev db.Event
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND kind IN ?", monitorID, kinds).
		Order("timestamp DESC, id DESC").
		First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.log.Error("events: latest by monitor kinds", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("events: latest by monitor kinds: %w", err)
	}
	return &ev, nil
}

// LatestByHostSchemeKinds returns the single latest event for any monitor on
// the given host/scheme whose kind is one of the given kinds — the
// per-host-scheme checker family predicate of §4.3 (SSL kinds).
func (s *EventStore) LatestByHostSchemeKinds(ctx context.Context, tag string, hostSchemeID uint32, kinds []db.EventKind) (*db.Event, error) {
	var ev db.Event
	err := s.db.WithContext(ctx).
		Joins("JOIN monitor ON monitor.id = event.monitor_id").
		Where("monitor.host_scheme_id = ? AND event.kind IN ?", hostSchemeID, kinds).
		Order("event.timestamp DESC, event.id DESC").
		First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.log.Error("events: latest by host scheme kinds", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("events: latest by host scheme kinds: %w", err)
	}
	return &ev, nil
}

// GetMonitorStatus retrieves the derived status for a monitor. Returns
// StatusUnknown if no row exists yet.
func (s *EventStore) GetMonitorStatus(ctx context.Context, tag string, monitorID uint32) db.MonitorStatusValue {
	var ms db.MonitorStatus
	if err := s.db.WithContext(ctx).First(&ms, "monitor_id = ?", monitorID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("events: get monitor status", zap.String("tag", tag), zap.Error(err))
		}
		return db.StatusUnknown
	}
	return ms.Status
}

// ListByMonitor returns a monitor's event history, most recent first.
func (s *EventStore) ListByMonitor(ctx context.Context, tag string, monitorID uint32, opts ListOptions) ([]db.Event, error) {
	var list []db.Event
	err := s.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("timestamp DESC, id DESC").
		Limit(opts.clampLimit()).
		Offset(opts.Offset).
		Find(&list).Error
	if err != nil {
		s.log.Error("events: list by monitor", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("events: list by monitor: %w", err)
	}
	return list, nil
}

// PurgeOlderThan deletes event rows older than cutoffUnix.
//
// The original source's Events::purgeEvents targets a table named "regions"
// rather than "event" — a bug per spec §9's open question. This
// implementation targets "event", the corrected behavior.
func (s *EventStore) PurgeOlderThan(ctx context.Context, tag string, cutoffUnix int64) (int64, error) {
	cutoff := zoran.FromUnix(cutoffUnix)
	result := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&db.Event{})
	if result.Error != nil {
		s.log.Error("events: purge older than", zap.String("tag", tag), zap.Error(result.Error))
		return 0, fmt.Errorf("events: purge older than: %w", result.Error)
	}
	return result.RowsAffected, nil
}
