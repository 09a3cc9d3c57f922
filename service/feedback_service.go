package service

import (
	"fmt"

	"econsensus/models"
	"econsensus/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeedbackService saves feedback and notifies the decision's watchers
type FeedbackService struct {
	*base
}

// Save inserts or updates the feedback. Either way the parent decision's
// last_modified is refreshed without sending decision notices.
//
// New feedback is watched by its author and announced to the decision's
// watchers except the author. An edit notifies the feedback's watchers
// unless it is a minor edit by the original author.
func (s *FeedbackService) Save(fb *models.Feedback) error {
	created := fb.ID == 0

	var decision models.Decision
	var recipients []models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Organization").First(&decision, fb.DecisionID).Error; err != nil {
			return fmt.Errorf("decision %d: %w", fb.DecisionID, err)
		}

		if created {
			if err := tx.Omit(clause.Associations).Create(fb).Error; err != nil {
				return fmt.Errorf("failed to create feedback: %w", err)
			}
		} else {
			if err := tx.Omit(clause.Associations).Save(fb).Error; err != nil {
				return fmt.Errorf("failed to save feedback: %w", err)
			}
		}

		modified, err := s.noteExternalModification(tx, decision.ID)
		if err != nil {
			return fmt.Errorf("failed to touch decision: %w", err)
		}
		decision.LastModified = &modified

		if !created {
			return nil
		}
		if fb.AuthorID != nil {
			if err := utils.Observe(tx, fb, *fb.AuthorID, models.FeedbackChange); err != nil {
				return fmt.Errorf("failed to observe feedback: %w", err)
			}
		}
		recipients, err = watcherUsersExcept(tx, &decision, fb.AuthorID)
		if err != nil {
			return fmt.Errorf("failed to load decision watchers: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	org := &decision.Organization
	actorID := fb.AuthorID
	eventType := models.FeedbackNew
	if !created {
		actorID = fb.EditorID
		eventType = models.FeedbackChange
	}
	s.publish(utils.ActivityEvent{
		Type:           eventType,
		OrganizationID: org.ID,
		DecisionID:     decision.ID,
		ObjectID:       fb.ID,
		ActorID:        actorID,
		Excerpt:        decision.Excerpt,
	})

	dispatch := utils.Dispatch{
		OrganizationID: org.ID,
		Context:        s.noticeContext(fb, &decision, actorID),
		Headers: map[string]string{
			"Message-ID":  fb.MessageID(s.domain()),
			"In-Reply-To": decision.MessageID(s.domain()),
		},
		FromEmail: s.organizationEmail(org),
		SenderID:  actorID,
	}

	if created {
		dispatch.Recipients = recipients
		dispatch.NoticeType = models.FeedbackNew
		dispatch.Observed = fb
		_, err = s.notifier.Send(dispatch)
		return notificationError(err)
	}

	if fb.SameAuthorAndEditor() && fb.MinorEdit {
		return nil
	}
	_, err = s.notifier.SendObservationNotices(fb, dispatch)
	return notificationError(err)
}

// Watch subscribes the user to changes of the feedback
func (s *FeedbackService) Watch(fb *models.Feedback, userID uint) error {
	return utils.Observe(s.db, fb, userID, models.FeedbackChange)
}

func (s *FeedbackService) noticeContext(fb *models.Feedback, d *models.Decision, actorID *uint) utils.NoticeContext {
	body := ""
	if fb.Description != nil {
		body = models.PlainText(*fb.Description)
	}
	return utils.NoticeContext{
		Organization: d.Organization.Name,
		Actor:        s.actorName(actorID),
		Decision:     d,
		Feedback:     fb,
		Body:         body,
		URL:          s.feedbackURL(fb.ID),
	}
}
