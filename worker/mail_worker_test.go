package worker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"econsensus/models"
	"econsensus/service"
	"econsensus/testutil"
	"econsensus/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mailFixture struct {
	db       *gorm.DB
	sender   *testutil.RecordingSender
	worker   *MailWorker
	services *service.Services

	alice, bob *models.User
	org        *models.Organization
	decision   *models.Decision
}

func newMailFixture(t *testing.T) *mailFixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &mailFixture{db: db, sender: &testutil.RecordingSender{}}
	f.services = service.New(service.Options{
		DB:               db,
		Notifier:         testutil.NewNotifier(db, f.sender),
		Activity:         utils.NewActivityHub(),
		DefaultFromEmail: testutil.DefaultFromEmail,
		Logger:           testutil.Logger(),
	})
	f.worker = NewMailWorker(db, f.services, testutil.SiteDomain, time.Minute, testutil.Logger())

	f.alice = testutil.CreateUser(t, db, "alice")
	f.bob = testutil.CreateUser(t, db, "bob")
	f.org = testutil.CreateOrganization(t, db, "acme", f.alice, f.bob)
	testutil.SetOrganizationDefault(t, db, f.org, models.FeedbackAddedNotifications)

	f.decision = &models.Decision{
		Description:    "Move the stand-up to 10am",
		OrganizationID: f.org.ID,
		AuthorID:       &f.alice.ID,
	}
	require.NoError(t, f.services.Decisions.Save(f.decision))
	f.sender.Reset()
	return f
}

func rawMail(from, subject, inReplyTo, body string) string {
	return strings.Join([]string{
		"From: " + from,
		"To: acme@example.com",
		"Subject: " + subject,
		"Message-ID: <abc123@mail.example.org>",
		"In-Reply-To: " + inReplyTo,
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
}

func TestProcessMessageCreatesFeedback(t *testing.T) {
	f := newMailFixture(t)

	msg := rawMail(
		"Bob <BOB@example.org>",
		"Re: danger: Move the stand-up",
		f.decision.MessageID(testutil.SiteDomain),
		"Half the team is in another timezone.\r\n\r\nOn Mon, Alice wrote:\r\n> Move the stand-up to 10am\r\n",
	)
	require.NoError(t, f.worker.ProcessMessage(strings.NewReader(msg)))

	var fb models.Feedback
	require.NoError(t, f.db.Where("decision_id = ?", f.decision.ID).First(&fb).Error)
	assert.Equal(t, models.DangerRating, fb.Rating)
	require.NotNil(t, fb.AuthorID)
	assert.Equal(t, f.bob.ID, *fb.AuthorID)
	require.NotNil(t, fb.Description)
	assert.Equal(t, "Half the team is in another timezone.", *fb.Description)

	// the decision author watches the decision and hears about the new feedback
	assert.Equal(t, []string{f.alice.Email}, f.sender.Recipients())
}

func TestProcessMessageRatingInBody(t *testing.T) {
	f := newMailFixture(t)

	msg := rawMail(
		"bob@example.org",
		"Re: Move the stand-up",
		f.decision.MessageID(testutil.SiteDomain),
		"consent: fine by me",
	)
	require.NoError(t, f.worker.ProcessMessage(strings.NewReader(msg)))

	var fb models.Feedback
	require.NoError(t, f.db.Where("decision_id = ?", f.decision.ID).First(&fb).Error)
	assert.Equal(t, models.ConsentRating, fb.Rating)
	assert.Equal(t, "fine by me", *fb.Description)
}

func TestProcessMessageDefaultsToComment(t *testing.T) {
	f := newMailFixture(t)

	msg := rawMail("bob@example.org", "Re: Move the stand-up", f.decision.MessageID(testutil.SiteDomain), "Just a note.")
	require.NoError(t, f.worker.ProcessMessage(strings.NewReader(msg)))

	var fb models.Feedback
	require.NoError(t, f.db.Where("decision_id = ?", f.decision.ID).First(&fb).Error)
	assert.Equal(t, models.CommentRating, fb.Rating)
}

func TestProcessMessageCreatesComment(t *testing.T) {
	f := newMailFixture(t)

	description := "Why 10?"
	fb := &models.Feedback{DecisionID: f.decision.ID, Description: &description, Rating: models.QuestionRating, AuthorID: &f.alice.ID}
	require.NoError(t, f.services.Feedback.Save(fb))

	msg := rawMail("bob@example.org", "Re: Why 10?", fb.MessageID(testutil.SiteDomain), "Because of the school run.")
	require.NoError(t, f.worker.ProcessMessage(strings.NewReader(msg)))

	var comments []models.Comment
	require.NoError(t, f.db.Where("feedback_id = ?", fb.ID).Find(&comments).Error)
	require.Len(t, comments, 1)
	assert.Equal(t, "Because of the school run.", comments[0].Comment)
	assert.Equal(t, f.bob.ID, *comments[0].UserID)

	// a reply to the comment lands in the same thread
	reply := rawMail("alice@example.org", "Re: Why 10?", comments[0].MessageID(testutil.SiteDomain), "Makes sense.")
	require.NoError(t, f.worker.ProcessMessage(strings.NewReader(reply)))

	require.NoError(t, f.db.Where("feedback_id = ?", fb.ID).Order("id").Find(&comments).Error)
	require.Len(t, comments, 2)
	assert.Equal(t, f.alice.ID, *comments[1].UserID)
}

func TestProcessMessageUsesReferences(t *testing.T) {
	f := newMailFixture(t)

	msg := strings.Join([]string{
		"From: bob@example.org",
		"Subject: Re: Move the stand-up",
		"References: <thread@elsewhere.org> " + f.decision.MessageID(testutil.SiteDomain),
		"Content-Type: text/plain",
		"",
		"question: who decided this?",
	}, "\r\n")
	require.NoError(t, f.worker.ProcessMessage(strings.NewReader(msg)))

	var count int64
	f.db.Model(&models.Feedback{}).Where("decision_id = ? AND rating = ?", f.decision.ID, models.QuestionRating).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestProcessMessageUnroutable(t *testing.T) {
	f := newMailFixture(t)
	outsider := testutil.CreateUser(t, f.db, "mallory")
	inactive := testutil.CreateUser(t, f.db, "dave")
	testutil.AddMember(t, f.db, f.org, inactive)
	testutil.Deactivate(t, f.db, inactive)

	decisionID := f.decision.MessageID(testutil.SiteDomain)
	tests := []struct {
		name string
		msg  string
	}{
		{"unknown sender", rawMail("nobody@example.org", "Re: x", decisionID, "hello")},
		{"not a member", rawMail(outsider.Email, "Re: x", decisionID, "hello")},
		{"inactive member", rawMail(inactive.Email, "Re: x", decisionID, "hello")},
		{"other domain", rawMail("bob@example.org", "Re: x", fmt.Sprintf("<decision-%d@other.example.com>", f.decision.ID), "hello")},
		{"missing decision", rawMail("bob@example.org", "Re: x", models.DecisionMessageID(9999, testutil.SiteDomain), "hello")},
		{"not a reply", rawMail("bob@example.org", "Hello", "<random@example.org>", "hello")},
		{"only quoted text", rawMail("bob@example.org", "Re: x", decisionID, "> hello")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.worker.ProcessMessage(strings.NewReader(tt.msg))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errUnroutable), err.Error())
		})
	}

	var count int64
	f.db.Model(&models.Feedback{}).Count(&count)
	assert.Zero(t, count)
}

func TestProcessMessageKeepsFeedbackWhenDeliveryFails(t *testing.T) {
	f := newMailFixture(t)
	f.sender.Err = errors.New("smtp down")

	msg := rawMail("bob@example.org", "Re: x", f.decision.MessageID(testutil.SiteDomain), "concerns: too early")
	require.NoError(t, f.worker.ProcessMessage(strings.NewReader(msg)))

	var count int64
	f.db.Model(&models.Feedback{}).Where("decision_id = ?", f.decision.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestStripQuoted(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello\nworld", "hello\nworld"},
		{"quoted lines", "agree\n> earlier\n>> older", "agree"},
		{"attribution", "yes\r\n\r\nOn Tue, 6 Oct 2026, Alice <a@example.org> wrote:\r\nanything", "yes"},
		{"trailing spaces", "  ok  \n", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripQuoted(tt.in))
		})
	}
}

func TestParseReplyHTMLOnly(t *testing.T) {
	msg := strings.Join([]string{
		"From: bob@example.org",
		"Subject: Re: x",
		"In-Reply-To: " + models.FeedbackMessageID(7, testutil.SiteDomain),
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Sounds <b>good</b> &amp; fine</p>",
	}, "\r\n")

	reply, err := ParseReply(strings.NewReader(msg), testutil.SiteDomain)
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackContentType, reply.ContentType)
	assert.Equal(t, uint(7), reply.ObjectID)
	assert.Equal(t, "Sounds good & fine", reply.Body)
}
