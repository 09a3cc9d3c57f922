// Package testutil builds throwaway databases and mail senders for tests.
package testutil

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"econsensus/config"
	"econsensus/models"
	"econsensus/utils"

	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	SiteDomain       = "econsensus.example.com"
	DefaultFromEmail = "econsensus@example.com"
	EncryptionKey    = "0123456789abcdef0123456789abcdef"
)

var dbCounter int64

// NewDB opens a private in-memory SQLite database with every model migrated
// and the notice types seeded.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	config.AppConfig.EncryptionKey = EncryptionKey
	config.AppConfig.SiteDomain = SiteDomain
	config.AppConfig.DefaultFromEmail = DefaultFromEmail

	dsn := fmt.Sprintf("file:econsensus_%d?mode=memory&cache=shared", atomic.AddInt64(&dbCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the shared in-memory database alive and
	// serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, config.MigrateDB(db))
	return db
}

// Logger discards component logs
func Logger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// SentMail is one message captured by RecordingSender
type SentMail struct {
	From    string
	To      []string
	Subject string
	Headers map[string][]string
}

// RecordingSender stands in for the SMTP dialer
type RecordingSender struct {
	mu   sync.Mutex
	Sent []SentMail
	Err  error
}

func (r *RecordingSender) DialAndSend(msgs ...*gomail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, m := range msgs {
		headers := make(map[string][]string)
		for _, name := range []string{"Message-ID", "In-Reply-To", "Precedence", "Auto-Submitted"} {
			if v := m.GetHeader(name); len(v) > 0 {
				headers[name] = v
			}
		}
		var from string
		if v := m.GetHeader("From"); len(v) > 0 {
			from = v[0]
		}
		var subject string
		if v := m.GetHeader("Subject"); len(v) > 0 {
			subject = v[0]
		}
		r.Sent = append(r.Sent, SentMail{
			From:    from,
			To:      m.GetHeader("To"),
			Subject: subject,
			Headers: headers,
		})
	}
	return nil
}

// Recipients lists the To addresses of every captured message in order
func (r *RecordingSender) Recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var to []string
	for _, m := range r.Sent {
		to = append(to, m.To...)
	}
	return to
}

// Reset forgets the captured messages
func (r *RecordingSender) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = nil
}

// NewNotifier wires a notifier to the recording sender
func NewNotifier(db *gorm.DB, sender *RecordingSender) *utils.Notifier {
	return utils.NewNotifier(db, utils.NewMailer(sender, Logger()), SiteDomain, Logger())
}

// CreateUser inserts an active user with an email derived from the username
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username:     username,
		Email:        username + "@example.org",
		PasswordHash: "x",
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// Deactivate marks the user inactive
func Deactivate(t *testing.T, db *gorm.DB, user *models.User) {
	t.Helper()
	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	user.IsActive = false
}

// CreateOrganization inserts an organization with the given members
func CreateOrganization(t *testing.T, db *gorm.DB, slug string, members ...*models.User) *models.Organization {
	t.Helper()
	org := &models.Organization{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, db.Create(org).Error)
	for _, user := range members {
		AddMember(t, db, org, user)
	}
	return org
}

// AddMember adds the user to the organization
func AddMember(t *testing.T, db *gorm.DB, org *models.Organization, user *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.OrganizationUser{OrganizationID: org.ID, UserID: user.ID}).Error)
}

// SetLevel stores the user's notification level in the organization
func SetLevel(t *testing.T, db *gorm.DB, user *models.User, org *models.Organization, level int) {
	t.Helper()
	settings := models.NotificationSettings{UserID: user.ID, OrganizationID: org.ID}
	require.NoError(t, db.Where(&settings).
		Assign(models.NotificationSettings{NotificationLevel: level}).
		FirstOrCreate(&settings).Error)
	require.NoError(t, db.Model(&settings).Update("notification_level", level).Error)
}

// Clock returns a controllable clock starting at start
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetOrganizationDefault stores the organization's default notification level
func SetOrganizationDefault(t *testing.T, db *gorm.DB, org *models.Organization, level int) {
	t.Helper()
	settings := models.OrganizationSettings{OrganizationID: org.ID}
	require.NoError(t, db.Where(&settings).
		Assign(models.OrganizationSettings{DefaultNotificationLevel: level}).
		FirstOrCreate(&settings).Error)
	require.NoError(t, db.Model(&settings).Update("default_notification_level", level).Error)
}
