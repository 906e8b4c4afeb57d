package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrValidation is the parent of all input-validation failures.
	ErrValidation = errors.New("notes: validation failed")
	// ErrTitleRequired indicates a blank title after trimming.
	ErrTitleRequired = fmt.Errorf("%w: title is required", ErrValidation)
	// ErrContentRequired indicates blank content after trimming.
	ErrContentRequired = fmt.Errorf("%w: content is required", ErrValidation)
	// ErrQueryRequired indicates a blank search query.
	ErrQueryRequired = fmt.Errorf("%w: search query is required", ErrValidation)

	// ErrNoteNotFound indicates no note exists for the identifier.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrNotOwner indicates the note exists but belongs to another user.
	// Distinct from ErrNoteNotFound so ownership violations surface as
	// forbidden, never as not-found.
	ErrNotOwner = errors.New("notes: note belongs to another user")

	errMissingDatabase = errors.New("notes: database connection required")
	errMissingOwner    = errors.New("notes: owner identifier is required")
)

// ServiceConfig describes the dependencies required for the note store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns note records and enforces single-owner access.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the note store.
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

// Create stores a new note owned by the caller. Title and content are trimmed
// and must be non-empty.
func (s *Service) Create(ctx context.Context, ownerID uint, title, content string) (Note, error) {
	if ownerID == 0 {
		return Note{}, errMissingOwner
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Note{}, ErrTitleRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Note{}, ErrContentRequired
	}

	note := Note{
		Title:     title,
		Content:   content,
		CreatedAt: s.now().UTC(),
		UserID:    ownerID,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logger.Error("note create failed", zap.Uint("owner_id", ownerID), zap.Error(err))
		return Note{}, err
	}
	return note, nil
}

// GetByID returns the note only when the caller owns it.
func (s *Service) GetByID(ctx context.Context, ownerID, noteID uint) (Note, error) {
	return s.ownedNote(ctx, s.db, ownerID, noteID)
}

// ListByOwner returns all notes owned by the caller, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID uint) ([]Note, error) {
	if ownerID == 0 {
		return nil, errMissingOwner
	}

	notes := make([]Note, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&notes).Error
	if err != nil {
		s.logger.Error("note list failed", zap.Uint("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	return notes, nil
}

// ListByUserID returns all notes for an arbitrary owner id without an
// ownership check. Kept only for the legacy unauthenticated listing endpoint.
func (s *Service) ListByUserID(ctx context.Context, userID uint) ([]Note, error) {
	notes := make([]Note, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// Update overwrites the supplied non-blank fields after trimming. Blank
// supplied fields leave the stored values unchanged, so an update with both
// fields blank is a no-op.
func (s *Service) Update(ctx context.Context, ownerID, noteID uint, title, content string) (Note, error) {
	var note Note
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		note, err = s.ownedNote(ctx, tx, ownerID, noteID)
		if err != nil {
			return err
		}

		if value := strings.TrimSpace(title); value != "" {
			note.Title = value
		}
		if value := strings.TrimSpace(content); value != "" {
			note.Content = value
		}
		return tx.Save(&note).Error
	})
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// Delete permanently removes the note when the caller owns it.
func (s *Service) Delete(ctx context.Context, ownerID, noteID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.ownedNote(ctx, tx, ownerID, noteID)
		if err != nil {
			return err
		}
		return tx.Delete(&note).Error
	})
}

// Search returns the caller's notes whose title or content contains the query,
// case-insensitively. A blank query is a validation failure.
func (s *Service) Search(ctx context.Context, ownerID uint, query string) ([]Note, error) {
	if ownerID == 0 {
		return nil, errMissingOwner
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrQueryRequired
	}

	pattern := "%" + strings.ToLower(query) + "%"
	notes := make([]Note, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND (LOWER(title) LIKE ? OR LOWER(content) LIKE ?)", ownerID, pattern, pattern).
		Order("created_at DESC, id DESC").
		Find(&notes).Error
	if err != nil {
		s.logger.Error("note search failed", zap.Uint("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	return notes, nil
}

// Count returns the number of notes owned by the caller.
func (s *Service) Count(ctx context.Context, ownerID uint) (int64, error) {
	if ownerID == 0 {
		return 0, errMissingOwner
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&Note{}).
		Where("user_id = ?", ownerID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Service) ownedNote(ctx context.Context, tx *gorm.DB, ownerID, noteID uint) (Note, error) {
	if ownerID == 0 {
		return Note{}, errMissingOwner
	}

	var note Note
	err := tx.WithContext(ctx).Where("id = ?", noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		return Note{}, err
	}
	if note.UserID != ownerID {
		return Note{}, ErrNotOwner
	}
	return note, nil
}
