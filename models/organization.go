package models

import "gorm.io/gorm"

// Organization owns decisions; its members are the audience for notices
type Organization struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	Slug     string `gorm:"uniqueIndex;not null;size:200" json:"slug"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Members []OrganizationUser `gorm:"foreignKey:OrganizationID" json:"members,omitempty"`
}

// OrganizationUser links a user to an organization
type OrganizationUser struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;uniqueIndex:idx_org_user" json:"organization_id"`
	UserID         uint `gorm:"not null;uniqueIndex:idx_org_user" json:"user_id"`
	IsAdmin        bool `gorm:"default:false" json:"is_admin"`

	// Relations
	Organization Organization `json:"-"`
	User         User         `json:"user"`
}

// OrganizationUsers returns every user of the organization. When activeOnly is
// set, deactivated accounts are left out.
func OrganizationUsers(db *gorm.DB, orgID uint, activeOnly bool) ([]User, error) {
	var users []User
	query := db.Model(&User{}).
		Joins("JOIN organization_users ON organization_users.user_id = users.id AND organization_users.deleted_at IS NULL").
		Where("organization_users.organization_id = ?", orgID)
	if activeOnly {
		query = query.Where("users.is_active = ?", true)
	}
	if err := query.Order("users.id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// IsMember reports whether the user belongs to the organization.
func IsMember(db *gorm.DB, orgID, userID uint) (bool, error) {
	var count int64
	err := db.Model(&OrganizationUser{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error
	return count > 0, err
}
