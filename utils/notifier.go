package utils

import (
	"errors"
	"fmt"
	"log"

	"econsensus/models"

	"gorm.io/gorm"
)

// PostSaveSignal is the signal recorded on watchers created by the save services
const PostSaveSignal = "post_save"

// Dispatch is one notice going out to a set of users
type Dispatch struct {
	Recipients     []models.User
	NoticeType     string
	OrganizationID uint
	Observed       models.Observable
	Context        NoticeContext
	Headers        map[string]string
	FromEmail      string
	SenderID       *uint
}

// Notifier stores notices and mails them to recipients whose notification
// level admits the notice type.
type Notifier struct {
	db         *gorm.DB
	mailer     *Mailer
	siteDomain string
	logger     *log.Logger
}

func NewNotifier(db *gorm.DB, mailer *Mailer, siteDomain string, logger *log.Logger) *Notifier {
	return &Notifier{
		db:         db,
		mailer:     mailer,
		siteDomain: siteDomain,
		logger:     logger,
	}
}

// SiteDomain is the domain used in message ids and links
func (n *Notifier) SiteDomain() string {
	return n.siteDomain
}

// Observe makes the user a watcher of obj. Observing twice is a no-op.
func Observe(db *gorm.DB, obj models.Observable, userID uint, noticeType string) error {
	watcher := models.Watcher{
		UserID:      userID,
		ContentType: obj.ContentType(),
		ObjectID:    obj.ObservedID(),
		NoticeType:  noticeType,
		Signal:      PostSaveSignal,
	}
	return db.Where("user_id = ? AND content_type = ? AND object_id = ? AND notice_type = ?",
		userID, watcher.ContentType, watcher.ObjectID, noticeType).
		FirstOrCreate(&watcher).Error
}

// StopObserving removes every watcher row of the user on obj
func StopObserving(db *gorm.DB, obj models.Observable, userID uint) error {
	return db.Unscoped().
		Where("user_id = ? AND content_type = ? AND object_id = ?", userID, obj.ContentType(), obj.ObservedID()).
		Delete(&models.Watcher{}).Error
}

// Send delivers the notice to every recipient and returns how many got it
func (n *Notifier) Send(d Dispatch) (int, error) {
	var noticeType models.NoticeType
	if err := n.db.Where("label = ?", d.NoticeType).First(&noticeType).Error; err != nil {
		return 0, fmt.Errorf("unknown notice type %s: %w", d.NoticeType, err)
	}

	headers := make(map[string]string, len(StandardSendingHeaders)+len(d.Headers))
	for k, v := range StandardSendingHeaders {
		headers[k] = v
	}
	for k, v := range d.Headers {
		headers[k] = v
	}

	delivered := 0
	seen := make(map[uint]bool, len(d.Recipients))
	var errs []error
	for i := range d.Recipients {
		recipient := &d.Recipients[i]
		if seen[recipient.ID] {
			continue
		}
		seen[recipient.ID] = true

		level, err := models.EffectiveNotificationLevel(n.db, recipient.ID, d.OrganizationID)
		if err != nil {
			errs = append(errs, fmt.Errorf("notification level of user %d: %w", recipient.ID, err))
			continue
		}
		if level < noticeType.MinimumLevel {
			continue
		}

		if err := n.deliver(recipient, &noticeType, d, headers); err != nil {
			LogError("notice_delivery", err, map[string]interface{}{
				"notice_type":  d.NoticeType,
				"recipient_id": recipient.ID,
			})
			errs = append(errs, err)
			continue
		}
		delivered++
	}

	if delivered > 0 {
		n.logger.Printf("Sent %s to %d user(s)", d.NoticeType, delivered)
	}
	return delivered, errors.Join(errs...)
}

func (n *Notifier) deliver(recipient *models.User, noticeType *models.NoticeType, d Dispatch, headers map[string]string) error {
	ctx := d.Context
	ctx.NoticeType = noticeType.Label
	ctx.Display = noticeType.Display
	ctx.SiteDomain = n.siteDomain
	ctx.Recipient = recipient.DisplayName()

	rendered, err := RenderNotice(ctx)
	if err != nil {
		return err
	}

	notice := models.Notice{
		RecipientID:  recipient.ID,
		SenderID:     d.SenderID,
		NoticeTypeID: noticeType.ID,
		Message:      rendered.Text,
		Unseen:       true,
	}
	if d.Observed != nil {
		notice.ContentType = d.Observed.ContentType()
		notice.ObjectID = d.Observed.ObservedID()
	}
	if err := n.db.Create(&notice).Error; err != nil {
		return fmt.Errorf("failed to store notice: %w", err)
	}

	if recipient.Email == "" {
		return nil
	}
	return n.mailer.Send(Email{
		From:    d.FromEmail,
		To:      []string{recipient.Email},
		Subject: rendered.Subject,
		Text:    rendered.Text,
		HTML:    rendered.HTML,
		Headers: headers,
	})
}

// SendObservationNotices notifies every watcher of obj with the notice type
// recorded on their watcher row.
func (n *Notifier) SendObservationNotices(obj models.Observable, d Dispatch) (int, error) {
	watchers, err := models.WatchersOf(n.db, obj)
	if err != nil {
		return 0, fmt.Errorf("failed to load watchers: %w", err)
	}

	var labels []string
	byLabel := make(map[string][]models.User)
	for _, w := range watchers {
		if _, ok := byLabel[w.NoticeType]; !ok {
			labels = append(labels, w.NoticeType)
		}
		byLabel[w.NoticeType] = append(byLabel[w.NoticeType], w.User)
	}

	total := 0
	var errs []error
	for _, label := range labels {
		dispatch := d
		dispatch.NoticeType = label
		dispatch.Recipients = byLabel[label]
		dispatch.Observed = obj
		sent, err := n.Send(dispatch)
		total += sent
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
