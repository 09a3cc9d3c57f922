package models

import (
	"gorm.io/gorm"
)

// Content types of observable objects
const (
	DecisionContentType = "decision"
	FeedbackContentType = "feedback"
	CommentContentType  = "comment"
)

// Observable is anything users can watch
type Observable interface {
	ContentType() string
	ObservedID() uint
}

func (d *Decision) ContentType() string { return DecisionContentType }
func (d *Decision) ObservedID() uint    { return d.ID }
func (f *Feedback) ContentType() string { return FeedbackContentType }
func (f *Feedback) ObservedID() uint    { return f.ID }
func (c *Comment) ContentType() string  { return CommentContentType }
func (c *Comment) ObservedID() uint     { return c.ID }

// Watcher subscribes a user to changes of one object. NoticeType is the
// notice sent when the object changes.
type Watcher struct {
	gorm.Model
	UserID      uint   `gorm:"not null;uniqueIndex:idx_watcher" json:"user_id"`
	ContentType string `gorm:"size:20;not null;uniqueIndex:idx_watcher;index:idx_watched" json:"content_type"`
	ObjectID    uint   `gorm:"not null;uniqueIndex:idx_watcher;index:idx_watched" json:"object_id"`
	NoticeType  string `gorm:"size:40;not null;uniqueIndex:idx_watcher" json:"notice_type"`
	Signal      string `gorm:"size:20;not null;default:'post_save'" json:"signal"`

	// Relations
	User User `json:"-"`
}

// WatchersOf returns the watcher rows of an object, users preloaded
func WatchersOf(db *gorm.DB, obj Observable) ([]Watcher, error) {
	var watchers []Watcher
	err := db.Preload("User").
		Where("content_type = ? AND object_id = ?", obj.ContentType(), obj.ObservedID()).
		Order("id").
		Find(&watchers).Error
	return watchers, err
}

// IsWatching reports whether the user watches the object
func IsWatching(db *gorm.DB, obj Observable, userID uint) (bool, error) {
	var count int64
	err := db.Model(&Watcher{}).
		Where("content_type = ? AND object_id = ? AND user_id = ?", obj.ContentType(), obj.ObservedID(), userID).
		Count(&count).Error
	return count > 0, err
}

// DeleteWatchers removes every watcher row of an object. Rows are removed
// permanently so observing again can reuse the unique index.
func DeleteWatchers(db *gorm.DB, contentType string, objectIDs ...uint) error {
	if len(objectIDs) == 0 {
		return nil
	}
	return db.Unscoped().
		Where("content_type = ? AND object_id IN ?", contentType, objectIDs).
		Delete(&Watcher{}).Error
}
