package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AbadAidjah/nuitdeinfo/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates no local record exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrMissingExternalID indicates the identity carried no stable identifier.
	ErrMissingExternalID = errors.New("users: external id is required")

	errMissingDatabase = errors.New("users: database connection required")
)

// ServiceConfig describes the dependencies required for the user directory.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service maps external identities to local user records.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the user directory service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// Sync looks up the user for the given identity, creating the record on first
// contact. Profile fields are overwritten unconditionally, last-login is
// refreshed and a zero creation timestamp is backfilled. The lookup-or-create
// runs in one transaction so concurrent first-contact requests for the same
// subject cannot create duplicate rows.
func (s *Service) Sync(ctx context.Context, identity auth.Identity) (User, error) {
	externalID := strings.TrimSpace(identity.ExternalID)
	if externalID == "" {
		return User{}, ErrMissingExternalID
	}

	now := s.now().UTC()
	var user User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("external_id = ?", externalID).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = User{
				ExternalID: externalID,
				Username:   identity.Username,
				Email:      identity.Email,
				FirstName:  identity.FirstName,
				LastName:   identity.LastName,
				CreatedAt:  now,
				LastLogin:  now,
			}
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}

		user.Username = identity.Username
		user.Email = identity.Email
		user.FirstName = identity.FirstName
		user.LastName = identity.LastName
		user.LastLogin = now
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		s.logger.Error("user sync failed", zap.String("external_id", externalID), zap.Error(err))
		return User{}, fmt.Errorf("users: sync failed: %w", err)
	}

	return user, nil
}

// FindByExternalID is a pure lookup with no side effects.
func (s *Service) FindByExternalID(ctx context.Context, externalID string) (User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return User{}, ErrMissingExternalID
	}

	var user User
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ProfileUpdate carries the mutable profile fields for an explicit update.
// Blank fields leave the stored value unchanged.
type ProfileUpdate struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// UpdateProfile overwrites the supplied non-blank fields on the caller's own
// record and returns the result.
func (s *Service) UpdateProfile(ctx context.Context, externalID string, update ProfileUpdate) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("external_id = ?", strings.TrimSpace(externalID)).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		if value := strings.TrimSpace(update.Username); value != "" {
			user.Username = value
		}
		if value := strings.TrimSpace(update.Email); value != "" {
			user.Email = value
		}
		if value := strings.TrimSpace(update.FirstName); value != "" {
			user.FirstName = value
		}
		if value := strings.TrimSpace(update.LastName); value != "" {
			user.LastName = value
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// DeleteAccount removes the user and all owned notes in one transaction. The
// notes rows are deleted explicitly because sqlite does not enforce cascade
// constraints unless the foreign-key pragma is enabled.
func (s *Service) DeleteAccount(ctx context.Context, externalID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Where("external_id = ?", strings.TrimSpace(externalID)).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Exec("DELETE FROM notes WHERE user_id = ?", user.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}
