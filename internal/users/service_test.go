package users

import (
	"context"
	"testing"
	"time"

	"github.com/AbadAidjah/nuitdeinfo/internal/auth"
	"github.com/AbadAidjah/nuitdeinfo/internal/notes"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clock func() time.Time) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&User{}, &notes.Note{}))

	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	require.NoError(t, err)
	return service, db
}

func testIdentity() auth.Identity {
	return auth.Identity{
		ExternalID: "subject-123",
		Username:   "jdoe",
		Email:      "jdoe@example.com",
		FirstName:  "Jane",
		LastName:   "Doe",
	}
}

func TestSyncCreatesUserOnFirstContact(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	service, _ := newTestService(t, func() time.Time { return now })

	user, err := service.Sync(context.Background(), testIdentity())
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.Equal(t, "subject-123", user.ExternalID)
	require.Equal(t, "jdoe", user.Username)
	require.Equal(t, now.UTC(), user.CreatedAt.UTC())
	require.Equal(t, now.UTC(), user.LastLogin.UTC())
}

func TestSyncUpdatesProfileWithoutDuplicating(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	service, db := newTestService(t, func() time.Time { return current })

	first, err := service.Sync(context.Background(), testIdentity())
	require.NoError(t, err)

	current = current.Add(time.Hour)
	changed := testIdentity()
	changed.Email = "new-address@example.com"
	second, err := service.Sync(context.Background(), changed)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "new-address@example.com", second.Email)
	require.Equal(t, first.CreatedAt.UTC(), second.CreatedAt.UTC())
	require.True(t, second.LastLogin.After(first.LastLogin))

	var count int64
	require.NoError(t, db.Model(&User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSyncRejectsMissingExternalID(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.Sync(context.Background(), auth.Identity{Username: "ghost"})
	require.ErrorIs(t, err, ErrMissingExternalID)
}

func TestFindByExternalID(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.FindByExternalID(context.Background(), "subject-123")
	require.ErrorIs(t, err, ErrUserNotFound)

	created, err := service.Sync(context.Background(), testIdentity())
	require.NoError(t, err)

	found, err := service.FindByExternalID(context.Background(), "subject-123")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
}

func TestUpdateProfileLeavesBlankFieldsUnchanged(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.Sync(context.Background(), testIdentity())
	require.NoError(t, err)

	updated, err := service.UpdateProfile(context.Background(), "subject-123", ProfileUpdate{
		Email:    "moved@example.com",
		LastName: "  ",
	})
	require.NoError(t, err)
	require.Equal(t, "moved@example.com", updated.Email)
	require.Equal(t, "jdoe", updated.Username)
	require.Equal(t, "Doe", updated.LastName)
}

func TestDeleteAccountCascadesToNotes(t *testing.T) {
	service, db := newTestService(t, nil)

	user, err := service.Sync(context.Background(), testIdentity())
	require.NoError(t, err)

	other := testIdentity()
	other.ExternalID = "subject-456"
	other.Username = "asmith"
	otherUser, err := service.Sync(context.Background(), other)
	require.NoError(t, err)

	require.NoError(t, db.Create(&notes.Note{Title: "a", Content: "b", UserID: user.ID}).Error)
	require.NoError(t, db.Create(&notes.Note{Title: "c", Content: "d", UserID: user.ID}).Error)
	require.NoError(t, db.Create(&notes.Note{Title: "e", Content: "f", UserID: otherUser.ID}).Error)

	require.NoError(t, service.DeleteAccount(context.Background(), "subject-123"))

	_, err = service.FindByExternalID(context.Background(), "subject-123")
	require.ErrorIs(t, err, ErrUserNotFound)

	var remaining int64
	require.NoError(t, db.Model(&notes.Note{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)

	require.ErrorIs(t, service.DeleteAccount(context.Background(), "subject-123"), ErrUserNotFound)
}
