package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Feedback ratings. The values are persisted, keep the order.
const (
	QuestionRating = iota
	DangerRating
	ConcernsRating
	ConsentRating
	CommentRating
)

// RatingNames is indexed by rating value
var RatingNames = []string{"question", "danger", "concerns", "consent", "comment"}

const AnonymousContributor = "An Anonymous Contributor"

// Feedback is a rated response to a decision
type Feedback struct {
	gorm.Model
	DecisionID  uint    `gorm:"not null;index" json:"decision_id"`
	Description *string `gorm:"type:text" json:"description"`
	Resolved    bool    `gorm:"default:false" json:"resolved"`
	Rating      int     `gorm:"not null" json:"rating"`

	AuthorID *uint `gorm:"index" json:"author_id"`
	EditorID *uint `json:"editor_id"`

	// Unpersisted flag for suppressing notifications at save time
	MinorEdit bool `gorm:"-" json:"-"`

	// Relations
	Decision Decision  `json:"-"`
	Author   *User     `json:"author,omitempty"`
	Editor   *User     `json:"-"`
	Comments []Comment `gorm:"foreignKey:FeedbackID" json:"comments,omitempty"`
}

func (Feedback) TableName() string {
	return "feedback"
}

// RatingName returns the label of a rating value
func RatingName(rating int) string {
	if rating < 0 || rating >= len(RatingNames) {
		return ""
	}
	return RatingNames[rating]
}

// ParseRating maps a rating label back to its value
func ParseRating(name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range RatingNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// IsValidRating reports whether r is a known rating value
func IsValidRating(r int) bool {
	return r >= QuestionRating && r <= CommentRating
}

// RatingLabel returns the label of the feedback's rating
func (f *Feedback) RatingLabel() string {
	return RatingName(f.Rating)
}

// AuthorName returns the author's username or the anonymous placeholder
func (f *Feedback) AuthorName() string {
	return f.Author.DisplayName()
}

// MessageID is used to thread notification emails about this feedback
func (f *Feedback) MessageID(siteDomain string) string {
	return FeedbackMessageID(f.ID, siteDomain)
}

// FeedbackMessageID formats the message id of the feedback with the given id
func FeedbackMessageID(id uint, siteDomain string) string {
	return fmt.Sprintf("<feedback-%d@%s>", id, siteDomain)
}

// SameAuthorAndEditor reports whether the last editor is the original author
func (f *Feedback) SameAuthorAndEditor() bool {
	if f.AuthorID == nil || f.EditorID == nil {
		return f.AuthorID == nil && f.EditorID == nil
	}
	return *f.AuthorID == *f.EditorID
}
