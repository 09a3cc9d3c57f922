package service

import (
	"fmt"

	"econsensus/models"
	"econsensus/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommentService saves comments and notifies the decision's watchers
type CommentService struct {
	*base
}

// Save inserts or updates the comment and refreshes the decision's
// last_modified. New comments are watched by their author and announced to
// the decision's watchers except the author. Edits notify the comment's
// watchers.
func (s *CommentService) Save(c *models.Comment) error {
	created := c.ID == 0
	if created && c.SubmitDate.IsZero() {
		c.SubmitDate = s.now()
	}

	var fb models.Feedback
	var recipients []models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Decision.Organization").First(&fb, c.FeedbackID).Error; err != nil {
			return fmt.Errorf("feedback %d: %w", c.FeedbackID, err)
		}

		if created {
			if err := tx.Omit(clause.Associations).Create(c).Error; err != nil {
				return fmt.Errorf("failed to create comment: %w", err)
			}
		} else {
			if err := tx.Omit(clause.Associations).Save(c).Error; err != nil {
				return fmt.Errorf("failed to save comment: %w", err)
			}
		}

		modified, err := s.noteExternalModification(tx, fb.DecisionID)
		if err != nil {
			return fmt.Errorf("failed to touch decision: %w", err)
		}
		fb.Decision.LastModified = &modified

		if !created {
			return nil
		}
		if c.UserID != nil {
			if err := utils.Observe(tx, c, *c.UserID, models.CommentChange); err != nil {
				return fmt.Errorf("failed to observe comment: %w", err)
			}
		}
		recipients, err = watcherUsersExcept(tx, &fb.Decision, c.UserID)
		if err != nil {
			return fmt.Errorf("failed to load decision watchers: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	decision := &fb.Decision
	org := &decision.Organization
	eventType := models.CommentNew
	if !created {
		eventType = models.CommentChange
	}
	s.publish(utils.ActivityEvent{
		Type:           eventType,
		OrganizationID: org.ID,
		DecisionID:     decision.ID,
		ObjectID:       c.ID,
		ActorID:        c.UserID,
		Excerpt:        decision.Excerpt,
	})

	dispatch := utils.Dispatch{
		OrganizationID: org.ID,
		Context: utils.NoticeContext{
			Organization: org.Name,
			Actor:        s.actorName(c.UserID),
			Decision:     decision,
			Feedback:     &fb,
			Comment:      c,
			Body:         models.PlainText(c.Comment),
			URL:          s.feedbackURL(fb.ID),
		},
		Headers: map[string]string{
			"Message-ID":  c.MessageID(s.domain()),
			"In-Reply-To": fb.MessageID(s.domain()),
		},
		FromEmail: s.organizationEmail(org),
		SenderID:  c.UserID,
	}

	if created {
		dispatch.Recipients = recipients
		dispatch.NoticeType = models.CommentNew
		dispatch.Observed = c
		_, err = s.notifier.Send(dispatch)
		return notificationError(err)
	}
	_, err = s.notifier.SendObservationNotices(c, dispatch)
	return notificationError(err)
}
