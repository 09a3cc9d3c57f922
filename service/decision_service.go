package service

import (
	"fmt"
	"time"

	"econsensus/models"
	"econsensus/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DecisionService saves decisions and keeps their watchers informed
type DecisionService struct {
	*base
}

// Save inserts or updates the decision.
//
// New decisions are watched by every active member of the organization and
// announced to everyone but the author. Updates rebuild the watchers when the
// organization changed, refresh last_modified when a trigger field changed
// and, unless MinorEdit is set, notify the watchers.
func (s *DecisionService) Save(d *models.Decision) error {
	if d.ID == 0 {
		return s.create(d)
	}
	return s.update(d)
}

func (s *DecisionService) create(d *models.Decision) error {
	d.RefreshExcerpt()
	now := s.now()
	creation := dateOf(now)
	d.LastModified = &now
	d.Creation = &creation
	if d.Status == "" {
		d.Status = models.ProposalStatus
	}
	if d.LastStatus == "" {
		d.LastStatus = models.LastStatusNew
	}

	var org models.Organization
	var recipients []models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&org, d.OrganizationID).Error; err != nil {
			return fmt.Errorf("organization %d: %w", d.OrganizationID, err)
		}
		if err := tx.Omit(clause.Associations).Create(d).Error; err != nil {
			return fmt.Errorf("failed to create decision: %w", err)
		}

		activeUsers, err := models.OrganizationUsers(tx, org.ID, true)
		if err != nil {
			return fmt.Errorf("failed to load organization users: %w", err)
		}
		for _, user := range activeUsers {
			if err := utils.Observe(tx, d, user.ID, models.DecisionChange); err != nil {
				return fmt.Errorf("failed to observe decision: %w", err)
			}
		}
		recipients = usersExcept(activeUsers, d.AuthorID)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Printf("Created decision %d in organization %s", d.ID, org.Slug)
	s.publish(utils.ActivityEvent{
		Type:           models.DecisionNew,
		OrganizationID: org.ID,
		DecisionID:     d.ID,
		ObjectID:       d.ID,
		ActorID:        d.AuthorID,
		Excerpt:        d.Excerpt,
	})

	_, err = s.notifier.Send(utils.Dispatch{
		Recipients:     recipients,
		NoticeType:     models.DecisionNew,
		OrganizationID: org.ID,
		Observed:       d,
		Context:        s.noticeContext(d, &org, d.AuthorID),
		Headers:        map[string]string{"Message-ID": d.MessageID(s.domain())},
		FromEmail:      s.organizationEmail(&org),
		SenderID:       d.AuthorID,
	})
	return notificationError(err)
}

func (s *DecisionService) update(d *models.Decision) error {
	d.RefreshExcerpt()

	var org models.Organization
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var prev models.Decision
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&prev, d.ID).Error; err != nil {
			return fmt.Errorf("decision %d: %w", d.ID, err)
		}
		if err := tx.First(&org, d.OrganizationID).Error; err != nil {
			return fmt.Errorf("organization %d: %w", d.OrganizationID, err)
		}

		if prev.OrganizationID != d.OrganizationID {
			if err := s.rebuildWatchers(tx, d); err != nil {
				return fmt.Errorf("failed to move watchers to organization %s: %w", org.Slug, err)
			}
		}
		// The caller's copy may predate feedback or comments saved since
		if !d.SameTriggerFields(&prev) {
			now := s.now()
			d.LastModified = &now
		} else {
			d.LastModified = prev.LastModified
		}
		if prev.Status != d.Status {
			d.LastStatus = prev.Status
		} else {
			d.LastStatus = prev.LastStatus
		}

		if err := tx.Omit(clause.Associations).Save(d).Error; err != nil {
			return fmt.Errorf("failed to save decision: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(utils.ActivityEvent{
		Type:           models.DecisionChange,
		OrganizationID: org.ID,
		DecisionID:     d.ID,
		ObjectID:       d.ID,
		ActorID:        d.EditorID,
		Excerpt:        d.Excerpt,
	})

	if d.MinorEdit {
		return nil
	}
	_, err = s.notifier.SendObservationNotices(d, utils.Dispatch{
		OrganizationID: org.ID,
		Context:        s.noticeContext(d, &org, d.EditorID),
		Headers:        map[string]string{"Message-ID": d.MessageID(s.domain())},
		FromEmail:      s.organizationEmail(&org),
		SenderID:       d.EditorID,
	})
	return notificationError(err)
}

// rebuildWatchers replaces the watchers of the decision, its feedback and
// their comments with every user of the decision's organization.
func (s *DecisionService) rebuildWatchers(tx *gorm.DB, d *models.Decision) error {
	orgUsers, err := models.OrganizationUsers(tx, d.OrganizationID, false)
	if err != nil {
		return err
	}

	if err := models.DeleteWatchers(tx, models.DecisionContentType, d.ID); err != nil {
		return err
	}
	if err := observeAll(tx, d, orgUsers, models.DecisionChange); err != nil {
		return err
	}

	var feedback []models.Feedback
	if err := tx.Where("decision_id = ?", d.ID).Preload("Comments").Find(&feedback).Error; err != nil {
		return err
	}
	for i := range feedback {
		fb := &feedback[i]
		if err := models.DeleteWatchers(tx, models.FeedbackContentType, fb.ID); err != nil {
			return err
		}
		if err := observeAll(tx, fb, orgUsers, models.FeedbackChange); err != nil {
			return err
		}
		for j := range fb.Comments {
			comment := &fb.Comments[j]
			if err := models.DeleteWatchers(tx, models.CommentContentType, comment.ID); err != nil {
				return err
			}
			if err := observeAll(tx, comment, orgUsers, models.CommentChange); err != nil {
				return err
			}
		}
	}

	s.logger.Printf("Rebuilt watchers of decision %d for %d user(s)", d.ID, len(orgUsers))
	return nil
}

// Watch subscribes the user to changes of the decision
func (s *DecisionService) Watch(d *models.Decision, userID uint) error {
	return utils.Observe(s.db, d, userID, models.DecisionChange)
}

// Unwatch removes the user's subscription to the decision
func (s *DecisionService) Unwatch(d *models.Decision, userID uint) error {
	return utils.StopObserving(s.db, d, userID)
}

func (s *DecisionService) noticeContext(d *models.Decision, org *models.Organization, actorID *uint) utils.NoticeContext {
	return utils.NoticeContext{
		Organization: org.Name,
		Actor:        s.actorName(actorID),
		Decision:     d,
		Body:         models.PlainText(d.Description),
		URL:          s.decisionURL(d.ID),
	}
}

func observeAll(tx *gorm.DB, obj models.Observable, users []models.User, noticeType string) error {
	for _, user := range users {
		if err := utils.Observe(tx, obj, user.ID, noticeType); err != nil {
			return err
		}
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
