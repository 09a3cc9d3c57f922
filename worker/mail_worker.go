package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"econsensus/models"
	"econsensus/service"
	"econsensus/utils"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"gorm.io/gorm"
)

// MailWorker polls the PostByEmail mailbox and turns replies to notices into
// feedback and comments.
type MailWorker struct {
	db         *gorm.DB
	services   *service.Services
	siteDomain string
	interval   time.Duration
	logger     *log.Logger
}

func NewMailWorker(db *gorm.DB, services *service.Services, siteDomain string, interval time.Duration, logger *log.Logger) *MailWorker {
	return &MailWorker{
		db:         db,
		services:   services,
		siteDomain: siteDomain,
		interval:   interval,
		logger:     logger,
	}
}

func (mw *MailWorker) Start(ctx context.Context) {
	mw.logger.Println("Starting mail worker...")
	ticker := time.NewTicker(mw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := mw.Poll(); err != nil {
				utils.LogError("mail_poll", err, map[string]interface{}{})
			}
		case <-ctx.Done():
			mw.logger.Println("Stopping mail worker...")
			return
		}
	}
}

// Poll reads the current settings and processes unseen messages once
func (mw *MailWorker) Poll() error {
	settings, err := utils.LoadPostByEmail(mw.db)
	if err != nil {
		return fmt.Errorf("failed to load PostByEmail settings: %w", err)
	}
	if !settings.Configured() {
		return nil
	}

	imapClient, err := dial(settings)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(settings.Username, settings.Password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := imapClient.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	handled := new(imap.SeqSet)
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			mw.logger.Printf("Message %d has no body", msg.SeqNum)
			continue
		}
		err := mw.ProcessMessage(body)
		switch {
		case err == nil:
			handled.AddNum(msg.SeqNum)
		case errors.Is(err, errUnroutable):
			// Never retried
			mw.logger.Printf("Ignoring message %d: %v", msg.SeqNum, err)
			handled.AddNum(msg.SeqNum)
		default:
			mw.logger.Printf("Failed to process message %d: %v", msg.SeqNum, err)
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %w", err)
	}

	if handled.Empty() {
		return nil
	}
	flags := []interface{}{imap.SeenFlag}
	if err := imapClient.Store(handled, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return fmt.Errorf("failed to flag messages seen: %w", err)
	}
	return nil
}

func dial(settings *utils.PostByEmailSettings) (*client.Client, error) {
	if settings.SSLEnabled {
		return client.DialTLS(settings.Address(), &tls.Config{
			ServerName: settings.Server,
		})
	}
	return client.Dial(settings.Address())
}

// ProcessMessage stores one raw message as feedback on a decision or as a
// comment on a feedback.
func (mw *MailWorker) ProcessMessage(r io.Reader) error {
	reply, err := ParseReply(r, mw.siteDomain)
	if err != nil {
		return err
	}
	if reply.Body == "" {
		return fmt.Errorf("%w: empty body", errUnroutable)
	}

	switch reply.ContentType {
	case models.DecisionContentType:
		return mw.createFeedback(reply, reply.ObjectID)
	case models.FeedbackContentType:
		return mw.createComment(reply, reply.ObjectID)
	case models.CommentContentType:
		var comment models.Comment
		if err := mw.db.First(&comment, reply.ObjectID).Error; err != nil {
			return mw.lookupError("comment", reply.ObjectID, err)
		}
		return mw.createComment(reply, comment.FeedbackID)
	}
	return fmt.Errorf("%w: unknown content type %s", errUnroutable, reply.ContentType)
}

func (mw *MailWorker) createFeedback(reply *Reply, decisionID uint) error {
	var decision models.Decision
	if err := mw.db.First(&decision, decisionID).Error; err != nil {
		return mw.lookupError("decision", decisionID, err)
	}
	author, err := mw.findMember(reply.From, decision.OrganizationID)
	if err != nil {
		return err
	}

	rating := reply.Rating()
	feedback := models.Feedback{
		DecisionID:  decision.ID,
		Description: &reply.Body,
		Rating:      rating,
		AuthorID:    &author.ID,
		EditorID:    &author.ID,
	}
	if err := mw.services.Feedback.Save(&feedback); err != nil && !errors.Is(err, service.ErrNotification) {
		return err
	}

	mw.logger.Printf("Created %s feedback %d on decision %d from %s", models.RatingName(rating), feedback.ID, decision.ID, reply.From)
	return nil
}

func (mw *MailWorker) createComment(reply *Reply, feedbackID uint) error {
	var feedback models.Feedback
	if err := mw.db.Preload("Decision").First(&feedback, feedbackID).Error; err != nil {
		return mw.lookupError("feedback", feedbackID, err)
	}
	author, err := mw.findMember(reply.From, feedback.Decision.OrganizationID)
	if err != nil {
		return err
	}

	comment := models.Comment{
		FeedbackID: feedback.ID,
		UserID:     &author.ID,
		Comment:    reply.Body,
	}
	if err := mw.services.Comments.Save(&comment); err != nil && !errors.Is(err, service.ErrNotification) {
		return err
	}

	mw.logger.Printf("Created comment %d on feedback %d from %s", comment.ID, feedback.ID, reply.From)
	return nil
}

// findMember returns the active user with the address who belongs to the organization
func (mw *MailWorker) findMember(address string, orgID uint) (*models.User, error) {
	var user models.User
	err := mw.db.
		Joins("JOIN organization_users ON organization_users.user_id = users.id AND organization_users.deleted_at IS NULL").
		Where("LOWER(users.email) = ? AND users.is_active = ? AND organization_users.organization_id = ?", address, true, orgID).
		Order("users.id").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s is not a member of organization %d", errUnroutable, address, orgID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (mw *MailWorker) lookupError(what string, id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d does not exist", errUnroutable, what, id)
	}
	return err
}
