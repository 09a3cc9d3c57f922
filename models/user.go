package models

import (
	"gorm.io/gorm"
)

// User represents an account that can author decisions and receive notices
type User struct {
	gorm.Model

	Username     string `gorm:"uniqueIndex;not null;size:150" json:"username"`
	Email        string `gorm:"index;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	// Bumped on logout so outstanding tokens stop validating
	TokenVersion int `gorm:"default:0" json:"-"`

	// Relations
	Memberships []OrganizationUser `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// DisplayName returns the username, or a placeholder for anonymous users.
func (u *User) DisplayName() string {
	if u == nil || u.Username == "" {
		return AnonymousContributor
	}
	return u.Username
}
