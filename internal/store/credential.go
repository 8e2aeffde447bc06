package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
)

// DefaultDispatcherCredentialKey is the one row this store manages today:
// the Outbound Dispatcher's shared default credential (§4.1, §4.2).
const DefaultDispatcherCredentialKey = "dispatcher.default"

// CredentialStore is the Store's DispatcherCredential repository. Values are
// encrypted at rest via db.EncryptedString.
type CredentialStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// Get retrieves a stored credential's plaintext value. Returns "", nil if
// no row exists for key.
func (s *CredentialStore) Get(ctx context.Context, tag, key string) (string, error) {
	var row db.DispatcherCredential
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		s.log.Error("credentials: get", zap.String("tag", tag), zap.Error(err))
		return "", fmt.Errorf("credentials: get: %w", err)
	}
	return string(row.Value), nil
}

// Set upserts a credential's plaintext value, encrypting it at rest.
func (s *CredentialStore) Set(ctx context.Context, tag, key, value string) error {
	row := db.DispatcherCredential{Key: key, Value: db.EncryptedString(value)}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		s.log.Error("credentials: set", zap.String("tag", tag), zap.Error(err))
		return fmt.Errorf("credentials: set: %w", err)
	}
	return nil
}
