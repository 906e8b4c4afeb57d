package notes

import "time"

// Note is a single-owner mutable record. Ownership never changes for the
// lifetime of the note.
type Note struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"column:title;size:255;not null" json:"title"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UserID    uint      `gorm:"column:user_id;not null;index" json:"userId"`
}

// TableName exposes the table backing notes.
func (Note) TableName() string {
	return "notes"
}
