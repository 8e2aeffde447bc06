package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// MonitorStore is the Store's Monitor repository.
type MonitorStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// InvalidMonitor is the read-path sentinel for a missing monitor.
var InvalidMonitor = db.Monitor{ID: 0}

// Create inserts a new monitor row, returning its assigned id.
func (s *MonitorStore) Create(ctx context.Context, tag string, m *db.Monitor) (uint32, error) {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		s.log.Error("monitors: create", zap.String("tag", tag), zap.Error(err))
		return 0, fmt.Errorf("monitors: create: %w", err)
	}
	return m.ID, nil
}

// GetByID retrieves a monitor by id.
func (s *MonitorStore) GetByID(ctx context.Context, tag string, id uint32) db.Monitor {
	var m db.Monitor
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("monitors: get by id", zap.String("tag", tag), zap.Error(err))
		}
		return InvalidMonitor
	}
	return m
}

// FindByHostSchemeSlug looks up the monitor at (hostSchemeID, slug), the
// unique key within a customer (§3, §4.5 step 3).
func (s *MonitorStore) FindByHostSchemeSlug(ctx context.Context, tag string, hostSchemeID uint32, slug string) (*db.Monitor, error) {
	var m db.Monitor
	err := s.db.WithContext(ctx).Where("host_scheme_id = ? AND slug = ?", hostSchemeID, slug).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.log.Error("monitors: find by host scheme slug", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("monitors: find by host scheme slug: %w", err)
	}
	return &m, nil
}

// Update writes back every mutable field of an existing monitor (§4.5 step 3:
// "compare each field; write an update if any differ").
func (s *MonitorStore) Update(ctx context.Context, tag string, m *db.Monitor) error {
	result := s.db.WithContext(ctx).Model(&db.Monitor{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
		"user_ordering":      m.UserOrdering,
		"method":             m.Method,
		"content_check_mode": m.ContentCheckMode,
		"keywords":           m.Keywords,
		"post_content_type":  m.PostContentType,
		"user_agent":         m.UserAgent,
		"post_content":       m.PostContent,
	})
	if result.Error != nil {
		s.log.Error("monitors: update", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("monitors: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a monitor.
func (s *MonitorStore) Delete(ctx context.Context, tag string, id uint32) error {
	result := s.db.WithContext(ctx).Delete(&db.Monitor{}, "id = ?", id)
	if result.Error != nil {
		s.log.Error("monitors: delete", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("monitors: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByCustomer returns every monitor owned by a customer.
func (s *MonitorStore) ListByCustomer(ctx context.Context, tag string, customerID uint32) ([]db.Monitor, error) {
	var list []db.Monitor
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("host_scheme_id, user_ordering").Find(&list).Error; err != nil {
		s.log.Error("monitors: list by customer", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("monitors: list by customer: %w", err)
	}
	return list, nil
}

// ListByHostScheme returns every monitor referencing a host/scheme, used by
// the SSL sweeper to pick "the first monitor under the host/scheme" (§4.4).
func (s *MonitorStore) ListByHostScheme(ctx context.Context, tag string, hostSchemeID uint32) ([]db.Monitor, error) {
	var list []db.Monitor
	if err := s.db.WithContext(ctx).Where("host_scheme_id = ?", hostSchemeID).Order("id").Find(&list).Error; err != nil {
		s.log.Error("monitors: list by host scheme", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("monitors: list by host scheme: %w", err)
	}
	return list, nil
}
