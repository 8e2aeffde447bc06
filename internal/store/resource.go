package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// ResourceStore is the Store's Resource and ActiveResources repository (§4.9).
type ResourceStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// DistinctValueTypes runs "SELECT DISTINCT value_type FROM resources WHERE
// customer_id=?", the cache-fill query of §4.9.
func (s *ResourceStore) DistinctValueTypes(ctx context.Context, tag string, customerID uint32) ([]uint8, error) {
	var types []uint8
	err := s.db.WithContext(ctx).Model(&db.Resource{}).
		Where("customer_id = ?", customerID).
		Distinct("value_type").
		Pluck("value_type", &types).Error
	if err != nil {
		s.log.Error("resources: distinct value types", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("resources: distinct value types: %w", err)
	}
	return types, nil
}

// Insert records one resource sample.
func (s *ResourceStore) Insert(ctx context.Context, tag string, r *db.Resource) error {
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		s.log.Error("resources: insert", zap.String("tag", tag), zap.Error(err))
		return fmt.Errorf("resources: insert: %w", err)
	}
	return nil
}

// ListSeries returns samples for one (customer, value type) in a timestamp1
// range, used to feed the plot endpoint's series data.
func (s *ResourceStore) ListSeries(ctx context.Context, tag string, customerID uint32, valueType uint8, fromTs1, toTs1 uint32) ([]db.Resource, error) {
	var list []db.Resource
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND value_type = ? AND timestamp1 BETWEEN ? AND ?", customerID, valueType, fromTs1, toTs1).
		Order("timestamp1").
		Find(&list).Error
	if err != nil {
		s.log.Error("resources: list series", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("resources: list series: %w", err)
	}
	return list, nil
}

// PurgeOlderThan deletes resource rows whose timestamp1 falls before the
// given cutoff, returning the set of affected customer ids so the Resource
// Cache can evict them (§4.9). Runs under a transaction when the driver
// supports it.
func (s *ResourceStore) PurgeOlderThan(ctx context.Context, tag string, cutoffTs1 uint32) ([]uint32, error) {
	var affected []uint32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Resource{}).
			Where("timestamp1 < ?", cutoffTs1).
			Distinct("customer_id").
			Pluck("customer_id", &affected).Error; err != nil {
			return fmt.Errorf("resources: purge: select affected: %w", err)
		}
		if err := tx.Where("timestamp1 < ?", cutoffTs1).Delete(&db.Resource{}).Error; err != nil {
			return fmt.Errorf("resources: purge: delete: %w", err)
		}
		return nil
	})
	if err != nil {
		s.log.Error("resources: purge older than", zap.String("tag", tag), zap.Error(err))
		return nil, err
	}
	return affected, nil
}

// GetActiveResources retrieves the persisted bitset, or nil if none exists.
func (s *ResourceStore) GetActiveResources(ctx context.Context, tag string, customerID uint32) ([]byte, error) {
	var row db.ActiveResources
	err := s.db.WithContext(ctx).First(&row, "customer_id = ?", customerID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		s.log.Error("resources: get active resources", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("resources: get active resources: %w", err)
	}
	return row.Bitset, nil
}

// SaveActiveResources persists the current bitset for a customer.
func (s *ResourceStore) SaveActiveResources(ctx context.Context, tag string, customerID uint32, bitset []byte) error {
	row := db.ActiveResources{CustomerID: customerID, Bitset: bitset}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		s.log.Error("resources: save active resources", zap.String("tag", tag), zap.Error(err))
		return fmt.Errorf("resources: save active resources: %w", err)
	}
	return nil
}
