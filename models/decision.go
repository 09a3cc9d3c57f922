package models

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

const (
	DiscussionStatus = "discussion"
	ProposalStatus   = "proposal"
	DecisionStatus   = "decision"
	ArchivedStatus   = "archived"

	// LastStatusNew is the last_status of a decision that never changed status
	LastStatusNew = "new"

	// ExcerptSize caps the excerpt when the description has no earlier break
	ExcerptSize = 140

	TagsHelpText = "Enter a list of tags separated by spaces."
)

// Statuses lists the decision statuses in display order
var Statuses = []string{DiscussionStatus, ProposalStatus, DecisionStatus, ArchivedStatus}

// TriggerFields are the fields whose change refreshes LastModified
var TriggerFields = []string{
	"description", "decided_date", "effective_date", "review_date",
	"expiry_date", "deadline", "archived_date", "budget", "people",
	"meeting_people", "status", "excerpt", "creation",
}

var (
	excerptPolicy = bluemonday.StrictPolicy()
	localPart     = regexp.MustCompile(`\w+@`)
)

// Decision is a proposal or decision tracked by an organization
type Decision struct {
	gorm.Model

	// User entered fields
	Description   string     `gorm:"type:text;not null" json:"description"`
	DecidedDate   *time.Time `gorm:"type:date" json:"decided_date"`
	EffectiveDate *time.Time `gorm:"type:date" json:"effective_date"`
	ReviewDate    *time.Time `gorm:"type:date" json:"review_date"`
	ExpiryDate    *time.Time `gorm:"type:date" json:"expiry_date"`
	Deadline      *time.Time `gorm:"type:date" json:"deadline"`
	ArchivedDate  *time.Time `gorm:"type:date" json:"archived_date"`
	Budget        string     `gorm:"size:255" json:"budget"`
	People        *string    `gorm:"size:255" json:"people"`
	MeetingPeople *string    `gorm:"size:255" json:"meeting_people"`
	Status        string     `gorm:"size:10;not null;default:'proposal';index" json:"status"`
	Tags          *string    `json:"tags"`

	OrganizationID uint `gorm:"not null;index" json:"organization_id"`

	// Admin stuff
	AuthorID     *uint      `gorm:"index" json:"author_id"`
	EditorID     *uint      `json:"editor_id"`
	LastModified *time.Time `json:"last_modified"`
	LastStatus   string     `gorm:"size:10;default:'new'" json:"last_status"`

	// Autocompleted fields
	Excerpt  string     `gorm:"size:255" json:"excerpt"`
	Creation *time.Time `gorm:"type:date" json:"creation"`

	// Unpersisted flag for suppressing notifications at save time
	MinorEdit bool `gorm:"-" json:"-"`

	// Relations
	Organization Organization `json:"-"`
	Author       *User        `json:"author,omitempty"`
	Editor       *User        `json:"-"`
	Feedback     []Feedback   `gorm:"foreignKey:DecisionID" json:"-"`
}

// IsValidStatus reports whether s is one of the decision statuses
func IsValidStatus(s string) bool {
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// ExcerptOf strips markup from a description and cuts it at the first
// sentence or line break, or at ExcerptSize characters.
func ExcerptOf(description string) string {
	stripped := []rune(PlainText(description))

	position := ExcerptSize
	for i, r := range stripped {
		if r == '.' || r == '\r' || r == '\n' {
			if i < position {
				position = i
			}
			break
		}
	}
	if position > len(stripped) {
		position = len(stripped)
	}
	return string(stripped[:position])
}

// PlainText strips every tag and unescapes entities
func PlainText(s string) string {
	return html.UnescapeString(excerptPolicy.Sanitize(s))
}

// RefreshExcerpt recomputes the excerpt from the description
func (d *Decision) RefreshExcerpt() {
	d.Excerpt = ExcerptOf(d.Description)
}

func (d *Decision) String() string {
	return d.Excerpt
}

// MessageID is used to thread notification emails about this decision
func (d *Decision) MessageID(siteDomain string) string {
	return DecisionMessageID(d.ID, siteDomain)
}

// DecisionMessageID formats the message id of the decision with the given id
func DecisionMessageID(id uint, siteDomain string) string {
	return fmt.Sprintf("<decision-%d@%s>", id, siteDomain)
}

// OrganizationEmail derives the organization's sending address from the
// default from address by swapping its local part for the slug.
func OrganizationEmail(defaultFromEmail, slug string) string {
	return localPart.ReplaceAllLiteralString(defaultFromEmail, slug+"@")
}

// TagList splits the space separated tags
func (d *Decision) TagList() []string {
	if d.Tags == nil {
		return nil
	}
	return strings.Fields(*d.Tags)
}

// SameTriggerFields reports whether none of the trigger fields differ from other
func (d *Decision) SameTriggerFields(other *Decision) bool {
	return d.Description == other.Description &&
		sameDate(d.DecidedDate, other.DecidedDate) &&
		sameDate(d.EffectiveDate, other.EffectiveDate) &&
		sameDate(d.ReviewDate, other.ReviewDate) &&
		sameDate(d.ExpiryDate, other.ExpiryDate) &&
		sameDate(d.Deadline, other.Deadline) &&
		sameDate(d.ArchivedDate, other.ArchivedDate) &&
		d.Budget == other.Budget &&
		sameString(d.People, other.People) &&
		sameString(d.MeetingPeople, other.MeetingPeople) &&
		d.Status == other.Status &&
		d.Excerpt == other.Excerpt &&
		sameDate(d.Creation, other.Creation)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DecisionSummary carries the read-only values derived from a decision's feedback
type DecisionSummary struct {
	FeedbackCount      int64            `json:"feedback_count"`
	UnresolvedFeedback bool             `json:"unresolved_feedback"`
	FeedbackStatistics map[string]int64 `json:"feedback_statistics"`
}

// SummarizeFeedback counts the decision's feedback per rating
func SummarizeFeedback(db *gorm.DB, decisionID uint) (*DecisionSummary, error) {
	summary := &DecisionSummary{FeedbackStatistics: make(map[string]int64, len(RatingNames))}
	for _, name := range RatingNames {
		summary.FeedbackStatistics[name] = 0
	}

	var rows []struct {
		Rating int
		Count  int64
	}
	if err := db.Model(&Feedback{}).
		Select("rating, count(*) as count").
		Where("decision_id = ?", decisionID).
		Group("rating").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		summary.FeedbackStatistics[RatingName(row.Rating)] = row.Count
		summary.FeedbackCount += row.Count
	}

	var unresolved int64
	if err := db.Model(&Feedback{}).
		Where("decision_id = ? AND resolved = ?", decisionID, false).
		Count(&unresolved).Error; err != nil {
		return nil, err
	}
	summary.UnresolvedFeedback = unresolved > 0
	return summary, nil
}
