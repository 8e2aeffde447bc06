package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// ServerStore is the Store's Server (worker) repository.
type ServerStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// InvalidServer is the read-path sentinel for a missing server.
var InvalidServer = db.Server{ID: 0}

// Create inserts a new server row in whatever status is supplied (§4.7:
// "Create worker creates the row in whatever status is supplied").
func (s *ServerStore) Create(ctx context.Context, tag string, srv *db.Server) (uint32, error) {
	if err := s.db.WithContext(ctx).Create(srv).Error; err != nil {
		s.log.Error("servers: create", zap.String("tag", tag), zap.Error(err))
		return 0, fmt.Errorf("servers: create: %w", err)
	}
	return srv.ID, nil
}

// GetByID retrieves a server by id.
func (s *ServerStore) GetByID(ctx context.Context, tag string, id uint32) db.Server {
	var srv db.Server
	if err := s.db.WithContext(ctx).First(&srv, "id = ?", id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("servers: get by id", zap.String("tag", tag), zap.Error(err))
		}
		return InvalidServer
	}
	return srv
}

// ListAll returns every server, used to rebuild the Fleet Administrator's
// in-memory snapshot on lazy load (§4.7).
func (s *ServerStore) ListAll(ctx context.Context, tag string) ([]db.Server, error) {
	var list []db.Server
	if err := s.db.WithContext(ctx).Find(&list).Error; err != nil {
		s.log.Error("servers: list all", zap.String("tag", tag), zap.Error(err))
		return nil, fmt.Errorf("servers: list all: %w", err)
	}
	return list, nil
}

// Modify overwrites a server's region and identifier. Only allowed when the
// current status is not ACTIVE (§4.7: "Modify worker allowed only when
// current status != ACTIVE, unless forced by a status transition") — the
// caller (Fleet Administrator) is responsible for enforcing that rule before
// calling Modify; this method performs the unconditional write.
func (s *ServerStore) Modify(ctx context.Context, tag string, id, regionID uint32, identifier string) error {
	result := s.db.WithContext(ctx).Model(&db.Server{}).Where("id = ?", id).Updates(map[string]interface{}{
		"region_id":  regionID,
		"identifier": identifier,
	})
	if result.Error != nil {
		s.log.Error("servers: modify", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("servers: modify: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus updates a server's status; the CPU load is set by SetCPULoad.
func (s *ServerStore) SetStatus(ctx context.Context, tag string, id uint32, status db.ServerStatus) error {
	result := s.db.WithContext(ctx).Model(&db.Server{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		s.log.Error("servers: set status", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("servers: set status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCPULoad updates a server's observed CPU loading float.
func (s *ServerStore) SetCPULoad(ctx context.Context, tag string, id uint32, load float64) error {
	result := s.db.WithContext(ctx).Model(&db.Server{}).Where("id = ?", id).Update("cpu_load", load)
	if result.Error != nil {
		s.log.Error("servers: set cpu load", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("servers: set cpu load: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a server. Only DEFUNCT servers may be deleted (§3, §4.7) —
// enforced by the caller before invoking Delete.
func (s *ServerStore) Delete(ctx context.Context, tag string, id uint32) error {
	result := s.db.WithContext(ctx).Delete(&db.Server{}, "id = ?", id)
	if result.Error != nil {
		s.log.Error("servers: delete", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("servers: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
