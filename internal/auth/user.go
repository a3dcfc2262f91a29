package auth

import "time"

// User owns tasks and contact bindings. Only the web app signs in; channel
// replies are attributed through verified bindings instead.
type User struct {
	ID           uint64    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;default:now()"`
}

func (User) TableName() string { return "users" }
