package service

import (
	"errors"
	"fmt"
	"log"
	"time"

	"econsensus/models"
	"econsensus/utils"

	"gorm.io/gorm"
)

// ErrNotification wraps delivery failures that happen after the data was saved
var ErrNotification = errors.New("notification delivery failed")

// Services bundles the save services sharing one notifier
type Services struct {
	Decisions *DecisionService
	Feedback  *FeedbackService
	Comments  *CommentService
}

// Options configures the save services
type Options struct {
	DB               *gorm.DB
	Notifier         *utils.Notifier
	Activity         *utils.ActivityHub
	DefaultFromEmail string
	Logger           *log.Logger
	Now              func() time.Time
}

func New(opts Options) *Services {
	b := &base{
		db:        opts.DB,
		notifier:  opts.Notifier,
		activity:  opts.Activity,
		fromEmail: opts.DefaultFromEmail,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}
	return &Services{
		Decisions: &DecisionService{base: b},
		Feedback:  &FeedbackService{base: b},
		Comments:  &CommentService{base: b},
	}
}

type base struct {
	db        *gorm.DB
	notifier  *utils.Notifier
	activity  *utils.ActivityHub
	fromEmail string
	logger    *log.Logger
	now       func() time.Time
}

func (b *base) domain() string {
	return b.notifier.SiteDomain()
}

func (b *base) organizationEmail(org *models.Organization) string {
	return models.OrganizationEmail(b.fromEmail, org.Slug)
}

func (b *base) decisionURL(id uint) string {
	return fmt.Sprintf("http://%s/item/detail/%d/", b.domain(), id)
}

func (b *base) feedbackURL(id uint) string {
	return fmt.Sprintf("http://%s/feedback/detail/%d/", b.domain(), id)
}

// actorName loads the user's display name, falling back to the anonymous label
func (b *base) actorName(userID *uint) string {
	if userID == nil {
		return models.AnonymousContributor
	}
	var user models.User
	if err := b.db.First(&user, *userID).Error; err != nil {
		return models.AnonymousContributor
	}
	return user.DisplayName()
}

// noteExternalModification refreshes the decision's last_modified without
// sending decision notices.
func (b *base) noteExternalModification(tx *gorm.DB, decisionID uint) (time.Time, error) {
	now := b.now()
	err := tx.Model(&models.Decision{}).
		Where("id = ?", decisionID).
		UpdateColumn("last_modified", now).Error
	return now, err
}

func (b *base) publish(event utils.ActivityEvent) {
	if b.activity != nil {
		b.activity.Publish(event)
	}
}

// watcherUsersExcept returns the users watching obj, without the excluded user
func watcherUsersExcept(tx *gorm.DB, obj models.Observable, exclude *uint) ([]models.User, error) {
	watchers, err := models.WatchersOf(tx, obj)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(watchers))
	for _, w := range watchers {
		if exclude != nil && w.UserID == *exclude {
			continue
		}
		users = append(users, w.User)
	}
	return users, nil
}

func usersExcept(users []models.User, exclude *uint) []models.User {
	if exclude == nil {
		return users
	}
	result := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID != *exclude {
			result = append(result, u)
		}
	}
	return result
}

func notificationError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNotification, err)
}
