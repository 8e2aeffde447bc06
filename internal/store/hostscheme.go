package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// HostSchemeStore is the Store's HostScheme repository.
type HostSchemeStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// InvalidHostScheme is the read-path sentinel for a missing host/scheme.
var InvalidHostScheme = db.HostScheme{ID: 0}

// Create inserts a new host/scheme row, returning its assigned id.
func (s *HostSchemeStore) Create(ctx context.Context, tag string, hs *db.HostScheme) (uint32, error) {
	if err := s.db.WithContext(ctx).Create(hs).Error; err != nil {
		s.log.Error("host_schemes: create", zap.String("tag", tag), zap.Error(err))
		return 0, fmt.Errorf("host_schemes: create: %w", err)
	}
	return hs.ID, nil
}

// Update writes back a host/scheme's scheme and authority (spec §6
// "/host_scheme/modify"). SSL expiration is updated separately via
// UpdateSSLExpiration, driven by probe outcomes rather than user edits.
func (s *HostSchemeStore) Update(ctx context.Context, tag string, id uint32, scheme, authority string) error {
	result := s.db.WithContext(ctx).Model(&db.HostScheme{}).Where("id = ?", id).Updates(map[string]interface{}{
		"scheme":    scheme,
		"authority": authority,
	})
	if result.Error != nil {
		s.log.Error("host_schemes: update", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("host_schemes: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a host/scheme by id.
func (s *HostSchemeStore) GetByID(ctx context.Context, tag string, id uint32) db.HostScheme {
	var hs db.HostScheme
	if err := s.db.WithContext(ctx).First(&hs, "id = ?", id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("host_schemes: get by id", zap.String("tag", tag), zap.Error(err))
		}
		return InvalidHostScheme
	}
	return hs
}

// FindByCustomerSchemeAuthority looks up an existing host/scheme for a
// customer by (lowercased scheme, lowercased authority), per spec §4.5 step 2.
func (s *HostSchemeStore) FindByCustomerSchemeAuthority(ctx context.Context, tag string, customerID uint32, scheme, authority string) (*db.HostScheme, error) {
	var hs db.HostScheme
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND LOWER(scheme) = ? AND LOWER(authority) = ?",
			customerID, strings.ToLower(scheme), strings.ToLower(authority)).
		First(&hs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.log.Error("host_schemes: find by scheme authority", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("host_schemes: find by scheme authority: %w", err)
	}
	return &hs, nil
}

// ListByCustomer returns every host/scheme owned by a customer.
func (s *HostSchemeStore) ListByCustomer(ctx context.Context, tag string, customerID uint32) ([]db.HostScheme, error) {
	var list []db.HostScheme
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Find(&list).Error; err != nil {
		s.log.Error("host_schemes: list by customer", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("host_schemes: list by customer: %w", err)
	}
	return list, nil
}

// ListAllWithExpiration returns every host/scheme with a known SSL
// expiration timestamp, the sweep source of spec §4.4's SSL sweeper.
func (s *HostSchemeStore) ListAllWithExpiration(ctx context.Context, tag string) ([]db.HostScheme, error) {
	var list []db.HostScheme
	if err := s.db.WithContext(ctx).Where("ssl_expiration_timestamp <> 0").Find(&list).Error; err != nil {
		s.log.Error("host_schemes: list all with expiration", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("host_schemes: list all with expiration: %w", err)
	}
	return list, nil
}

// UpdateSSLExpiration updates the last-known SSL expiration timestamp,
// driven by certificate probe outcomes (§3).
func (s *HostSchemeStore) UpdateSSLExpiration(ctx context.Context, tag string, id uint32, unixTs int64) error {
	result := s.db.WithContext(ctx).Model(&db.HostScheme{}).Where("id = ?", id).Update("ssl_expiration_timestamp", unixTs)
	if result.Error != nil {
		s.log.Error("host_schemes: update ssl expiration", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("host_schemes: update ssl expiration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a host/scheme. The reconciler calls it once no monitor
// references it (§4.5 step 4); "/host_scheme/delete" calls it directly, and
// any monitors still referencing the row go with it via ON DELETE CASCADE.
func (s *HostSchemeStore) Delete(ctx context.Context, tag string, id uint32) error {
	result := s.db.WithContext(ctx).Delete(&db.HostScheme{}, "id = ?", id)
	if result.Error != nil {
		s.log.Error("host_schemes: delete", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("host_schemes: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllForCustomer cascade-deletes every host/scheme (and, via the
// foreign key, every monitor) owned by a customer — the empty-input rule
// of spec §4.5 step 5.
func (s *HostSchemeStore) DeleteAllForCustomer(ctx context.Context, tag string, customerID uint32) error {
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Delete(&db.HostScheme{}).Error; err != nil {
		s.log.Error("host_schemes: delete all for customer", zap.String("tag", tag), zap.Error(err))
		return fmt.Errorf("host_schemes: delete all for customer: %w", err)
	}
	return nil
}
