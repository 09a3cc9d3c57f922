package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Comment is a reply in a feedback thread
type Comment struct {
	gorm.Model
	FeedbackID uint      `gorm:"not null;index" json:"feedback_id"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	Comment    string    `gorm:"type:text;not null" json:"comment"`
	SubmitDate time.Time `json:"submit_date"`

	// Relations
	Feedback Feedback `json:"-"`
	User     *User    `json:"user,omitempty"`
}

// MessageID is used to thread notification emails about this comment
func (c *Comment) MessageID(siteDomain string) string {
	return CommentMessageID(c.ID, siteDomain)
}

// CommentMessageID formats the message id of the comment with the given id
func CommentMessageID(id uint, siteDomain string) string {
	return fmt.Sprintf("<comment-%d@%s>", id, siteDomain)
}
