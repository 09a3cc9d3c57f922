package models

import (
	"errors"

	"gorm.io/gorm"
)

// The levels are cumulative, so a user at level n gets everything at
// levels below n as well.
const (
	NoNotifications            = 0
	MainItemsNotificationsOnly = 1
	FeedbackAddedNotifications = 2
	FeedbackMajorChanges       = 3
	MinorChangesNotifications  = 4
)

// NotificationLevelHelp describes the cumulative levels
const NotificationLevelHelp = "Levels are cumulative, so if, for example, you choose to " +
	"get notifications of replies to feedback, you will get " +
	"notifications of all changes to main items as well."

// NotificationLevels maps a level to its display text
var NotificationLevels = map[int]string{
	NoNotifications:            "1. Silent",
	MainItemsNotificationsOnly: "2. Major events",
	FeedbackAddedNotifications: "3. Feedback and changes",
	FeedbackMajorChanges:       "4. Full discussion",
	MinorChangesNotifications:  "5. Everything, even minor changes",
}

// IsValidNotificationLevel reports whether level is one of the known levels
func IsValidNotificationLevel(level int) bool {
	_, ok := NotificationLevels[level]
	return ok
}

// Notice type labels
const (
	DecisionNew    = "decision_new"
	DecisionChange = "decision_change"
	FeedbackNew    = "feedback_new"
	FeedbackChange = "feedback_change"
	CommentNew     = "comment_new"
	CommentChange  = "comment_change"
)

// NotificationSettings holds a user's level for one organization
type NotificationSettings struct {
	gorm.Model
	UserID            uint `gorm:"not null;uniqueIndex:idx_user_org" json:"user_id"`
	OrganizationID    uint `gorm:"not null;uniqueIndex:idx_user_org" json:"organization_id"`
	NotificationLevel int  `gorm:"not null" json:"notification_level"`

	// Relations
	User         User         `json:"-"`
	Organization Organization `json:"-"`
}

// OrganizationSettings holds the organization-wide default level
type OrganizationSettings struct {
	gorm.Model
	OrganizationID           uint `gorm:"not null;uniqueIndex" json:"organization_id"`
	DefaultNotificationLevel int  `gorm:"not null" json:"default_notification_level"`

	// Relations
	Organization Organization `json:"-"`
}

// NoticeType describes one kind of notice
type NoticeType struct {
	gorm.Model
	Label        string `gorm:"uniqueIndex;not null;size:40" json:"label"`
	Display      string `gorm:"not null" json:"display"`
	Description  string `json:"description"`
	MinimumLevel int    `gorm:"not null" json:"minimum_level"`
}

// Notice is the stored copy of a notice sent to a user
type Notice struct {
	gorm.Model
	RecipientID  uint   `gorm:"not null;index" json:"recipient_id"`
	SenderID     *uint  `json:"sender_id"`
	NoticeTypeID uint   `gorm:"not null" json:"notice_type_id"`
	Message      string `gorm:"type:text" json:"message"`
	Unseen       bool   `gorm:"default:true;index" json:"unseen"`
	ContentType  string `gorm:"size:20" json:"content_type"`
	ObjectID     uint   `json:"object_id"`

	// Relations
	Recipient  User       `json:"-"`
	NoticeType NoticeType `json:"notice_type"`
}

// MarkSeen clears the unseen flag
func (n *Notice) MarkSeen(db *gorm.DB) error {
	n.Unseen = false
	return db.Model(n).Update("unseen", false).Error
}

// EffectiveNotificationLevel resolves the level used for a user in an
// organization: the user's own setting, then the organization default, then
// MainItemsNotificationsOnly.
func EffectiveNotificationLevel(db *gorm.DB, userID, orgID uint) (int, error) {
	var settings NotificationSettings
	err := db.Where("user_id = ? AND organization_id = ?", userID, orgID).First(&settings).Error
	if err == nil {
		return settings.NotificationLevel, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	var orgSettings OrganizationSettings
	err = db.Where("organization_id = ?", orgID).First(&orgSettings).Error
	if err == nil {
		return orgSettings.DefaultNotificationLevel, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	return MainItemsNotificationsOnly, nil
}
