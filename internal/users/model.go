package users

import "time"

// User is the local record synchronized from the identity provider. The
// external id is immutable once set; profile fields are overwritten on every
// successful credential sync because the provider is the source of truth.
type User struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ExternalID string    `gorm:"column:external_id;size:190;not null;uniqueIndex" json:"-"`
	Username   string    `gorm:"column:username;size:190;uniqueIndex" json:"username"`
	Email      string    `gorm:"column:email;size:320" json:"email"`
	FirstName  string    `gorm:"column:first_name;size:190" json:"firstName"`
	LastName   string    `gorm:"column:last_name;size:190" json:"lastName"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"createdAt"`
	LastLogin  time.Time `gorm:"column:last_login" json:"lastLogin"`
}

// TableName exposes the table backing local user records.
func (User) TableName() string {
	return "users"
}
