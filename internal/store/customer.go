package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// CustomerStore is the Store's Customer and CustomerCapabilities repository.
type CustomerStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// InvalidCustomer is the read-path sentinel returned on lookup failure,
// per spec §4.1 ("read paths return an invalid sentinel of the relevant
// type on failure").
var InvalidCustomer = db.Customer{ID: 0}

// GetByID retrieves a customer by id. Returns InvalidCustomer on any
// failure, logging the underlying cause.
func (s *CustomerStore) GetByID(ctx context.Context, tag string, id uint32) db.Customer {
	var c db.Customer
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("customers: get by id", zap.String("tag", tag), zap.Uint32("id", id), zap.Error(err))
		}
		return InvalidCustomer
	}
	return c
}

// Capabilities retrieves a customer's capability row. Returns the zero value
// (all capabilities false) if none exists — a customer with no capability
// row behaves as if nothing is supported.
func (s *CustomerStore) Capabilities(ctx context.Context, tag string, customerID uint32) (db.CustomerCapabilities, error) {
	var c db.CustomerCapabilities
	err := s.db.WithContext(ctx).First(&c, "customer_id = ?", customerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.CustomerCapabilities{CustomerID: customerID}, nil
		}
		s.log.Error("customers: capabilities", zap.String("tag", tag), zap.Uint32("customer_id", customerID), zap.Error(err))
		return db.CustomerCapabilities{}, fmt.Errorf("customers: capabilities: %w", err)
	}
	return c, nil
}

// SetPaused updates the customer's paused flag.
func (s *CustomerStore) SetPaused(ctx context.Context, tag string, customerID uint32, paused bool) error {
	result := s.db.WithContext(ctx).Model(&db.Customer{}).Where("id = ?", customerID).Update("paused", paused)
	if result.Error != nil {
		s.log.Error("customers: set paused", zap.String("tag", tag), zap.Error(result.Error))
		return fmt.Errorf("customers: set paused: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
