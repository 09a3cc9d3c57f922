package models

import "gorm.io/gorm"

// CreateNoticeTypes seeds the notice types used by the save services
func CreateNoticeTypes(db *gorm.DB) error {
	noticeTypes := []NoticeType{
		{
			Label:        DecisionNew,
			Display:      "New decision",
			Description:  "A new decision has been added",
			MinimumLevel: MainItemsNotificationsOnly,
		},
		{
			Label:        DecisionChange,
			Display:      "Decision changed",
			Description:  "A decision you are watching has changed",
			MinimumLevel: FeedbackAddedNotifications,
		},
		{
			Label:        FeedbackNew,
			Display:      "New feedback",
			Description:  "Feedback has been added to a decision you are watching",
			MinimumLevel: FeedbackAddedNotifications,
		},
		{
			Label:        FeedbackChange,
			Display:      "Feedback changed",
			Description:  "Feedback you are watching has changed",
			MinimumLevel: FeedbackMajorChanges,
		},
		{
			Label:        CommentNew,
			Display:      "New comment",
			Description:  "A comment has been added to feedback on a decision you are watching",
			MinimumLevel: FeedbackMajorChanges,
		},
		{
			Label:        CommentChange,
			Display:      "Comment changed",
			Description:  "A comment you are watching has changed",
			MinimumLevel: FeedbackMajorChanges,
		},
	}
	for _, noticeType := range noticeTypes {
		// Existing rows take the current display text and level
		err := db.Where(NoticeType{Label: noticeType.Label}).
			Assign(NoticeType{Display: noticeType.Display, Description: noticeType.Description, MinimumLevel: noticeType.MinimumLevel}).
			FirstOrCreate(&noticeType).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// AllModels lists every model handled by AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Organization{},
		&OrganizationUser{},
		&Decision{},
		&Feedback{},
		&Comment{},
		&Watcher{},
		&NoticeType{},
		&Notice{},
		&NotificationSettings{},
		&OrganizationSettings{},
		&Setting{},
	}
}
