package database

import (
	"path/filepath"
	"testing"

	"github.com/AbadAidjah/nuitdeinfo/internal/notes"
	"github.com/AbadAidjah/nuitdeinfo/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsNoteTimestamps(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "migration.db")

	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	if err := db.AutoMigrate(&users.User{}, &notes.Note{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	if err := db.Exec(
		"INSERT INTO notes (title, content, created_at, user_id) VALUES ('orphan', 'imported', '', 1)",
	).Error; err != nil {
		t.Fatalf("failed to insert legacy row: %v", err)
	}

	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	var createdAt string
	if err := db.Raw("SELECT created_at FROM notes WHERE title = 'orphan'").Scan(&createdAt).Error; err != nil {
		t.Fatalf("failed to reload note: %v", err)
	}
	if createdAt == "" {
		t.Fatal("expected created_at to be backfilled")
	}

	var record migrationRecord
	if err := db.Where("name = ?", migrationBackfillNoteTimestamps).Take(&record).Error; err != nil {
		t.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatal("expected migration timestamp to be set")
	}

	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("second run should be a no-op: %v", err)
	}
	var count int64
	if err := db.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single migration record, got %d", count)
	}
}
