package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// MappingStore is the Store's CustomerMapping repository.
type MappingStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// Get retrieves a customer's worker mapping. Returns nil, nil if the
// customer has no mapping yet.
func (s *MappingStore) Get(ctx context.Context, tag string, customerID uint32) (*db.CustomerMapping, error) {
	var m db.CustomerMapping
	err := s.db.WithContext(ctx).First(&m, "customer_id = ?", customerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.log.Error("mappings: get", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("mappings: get: %w", err)
	}
	return &m, nil
}

// ListAll returns every persisted customer mapping, used by the Fleet
// Administrator to find the customers mapped to a given worker.
func (s *MappingStore) ListAll(ctx context.Context, tag string) ([]db.CustomerMapping, error) {
	var list []db.CustomerMapping
	if err := s.db.WithContext(ctx).Find(&list).Error; err != nil {
		s.log.Error("mappings: list all", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("mappings: list all: %w", err)
	}
	return list, nil
}

// Upsert persists a customer's mapping (primary + member set).
func (s *MappingStore) Upsert(ctx context.Context, tag string, customerID, primaryID uint32, members []uint32) error {
	strs := make([]string, len(members))
	for i, m := range members {
		strs[i] = strconv.FormatUint(uint64(m), 10)
	}
	row := db.CustomerMapping{
		CustomerID: customerID,
		PrimaryID:  primaryID,
		Members:    strings.Join(strs, ","),
	}
	err := s.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		s.log.Error("mappings: upsert", zap.String("tag", tag), zap.Error(err))
		return fmt.Errorf("mappings: upsert: %w", err)
	}
	return nil
}

// Delete clears a customer's mapping (§4.7 deactivateCustomer).
func (s *MappingStore) Delete(ctx context.Context, tag string, customerID uint32) error {
	if err := s.db.WithContext(ctx).Delete(&db.CustomerMapping{}, "customer_id = ?", customerID).Error; err != nil {
		s.log.Error("mappings: delete", zap.String("tag", tag), zap.Error(err))
		return fmt.Errorf("mappings: delete: %w", err)
	}
	return nil
}

// ParseMembers splits the comma-separated Members column back into ids.
func ParseMembers(members string) []uint32 {
	if members == "" {
		return nil
	}
	parts := strings.Split(members, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(n))
	}
	return out
}
