package models

import (
	"time"
)

// UserStatus represents the presence status persisted for a user
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	StatusAway    UserStatus = "away"
)

// User represents a user in the system
type User struct {
	ID        string     `json:"id" gorm:"primaryKey"`
	Username  string     `json:"username" gorm:"unique;not null"`
	Password  string     `json:"-" gorm:"not null"`
	Avatar    string     `json:"avatar"`
	Status    UserStatus `json:"status" gorm:"not null;default:'offline'"`
	LastSeen  time.Time  `json:"lastSeen" gorm:"column:last_seen"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for User Model
func (User) TableName() string {
	return "users"
}
