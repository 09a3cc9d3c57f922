package utils_test

import (
	"testing"
	"time"

	"econsensus/config"
	"econsensus/models"
	"econsensus/testutil"
	"econsensus/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptionRoundTrip(t *testing.T) {
	key := []byte(testutil.EncryptionKey)

	sealed, err := utils.EncryptWithKey(key, "hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", sealed)

	opened, err := utils.DecryptWithKey(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened)

	_, err = utils.DecryptWithKey([]byte("fedcba9876543210fedcba9876543210"), sealed)
	assert.Error(t, err)

	empty, err := utils.EncryptWithKey(key, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestValidateStruct(t *testing.T) {
	type payload struct {
		Email  string  `validate:"required,mailformat"`
		Status string  `validate:"omitempty,decisionstatus"`
		Rating *int    `validate:"omitempty,rating"`
		Level  *int    `validate:"required,notificationlevel"`
		Name   *string `validate:"omitempty,max=5"`
	}

	tests := []struct {
		name    string
		in      payload
		wantErr string
	}{
		{"valid", payload{Email: "a@example.org", Status: "proposal", Rating: utils.Pointer(0), Level: utils.Pointer(0)}, ""},
		{"bad email", payload{Email: "nope", Level: utils.Pointer(1)}, "email must be a valid email"},
		{"bad status", payload{Email: "a@example.org", Status: "maybe", Level: utils.Pointer(1)}, "status must be one of"},
		{"bad rating", payload{Email: "a@example.org", Rating: utils.Pointer(7), Level: utils.Pointer(1)}, "rating must be one of"},
		{"missing level", payload{Email: "a@example.org"}, "level is required"},
		{"bad level", payload{Email: "a@example.org", Level: utils.Pointer(5)}, "level must be between 0 and 4"},
		{"too long", payload{Email: "a@example.org", Level: utils.Pointer(1), Name: utils.Pointer("abcdefg")}, "name must be at most 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := utils.ValidateStruct(tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDate(t *testing.T) {
	date, err := utils.ParseDate(utils.Pointer("2026-10-17"))
	require.NoError(t, err)
	require.NotNil(t, date)
	assert.True(t, date.Equal(time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)))

	date, err = utils.ParseDate(utils.Pointer(""))
	require.NoError(t, err)
	assert.Nil(t, date)

	_, err = utils.ParseDate(utils.Pointer("17/10/2026"))
	assert.Error(t, err)
}

func TestPostByEmailSettings(t *testing.T) {
	db := testutil.NewDB(t)

	settings, err := utils.LoadPostByEmail(db)
	require.NoError(t, err)
	assert.False(t, settings.Configured())
	assert.False(t, settings.SSLEnabled)

	require.NoError(t, utils.SavePostByEmail(db, &utils.PostByEmailSettings{
		Username:   "acme",
		Password:   "s3cret",
		Server:     "imap.example.org",
		SSLEnabled: true,
	}))

	var stored models.Setting
	require.NoError(t, db.Where(&models.Setting{Group: config.PostByEmailGroup.Key, Key: config.PostByEmailPassword}).First(&stored).Error)
	assert.NotEqual(t, "s3cret", stored.Value)

	settings, err = utils.LoadPostByEmail(db)
	require.NoError(t, err)
	assert.True(t, settings.Configured())
	assert.Equal(t, "s3cret", settings.Password)
	assert.Equal(t, "imap.example.org:993", settings.Address())

	settings.SSLEnabled = false
	assert.Equal(t, "imap.example.org:143", settings.Address())
	settings.Port = 1143
	assert.Equal(t, "imap.example.org:1143", settings.Address())

	err = utils.SaveSetting(db, config.PostByEmailGroup, config.PostByEmailPort, "abc")
	assert.Error(t, err)
	err = utils.SaveSetting(db, config.PostByEmailGroup, "COLOR", "blue")
	assert.Error(t, err)
}

func TestActivityHub(t *testing.T) {
	hub := utils.NewActivityHub()
	events, cancel := hub.Subscribe(1, 2)

	hub.Publish(utils.ActivityEvent{Type: "decision_saved", OrganizationID: 1, DecisionID: 7})
	hub.Publish(utils.ActivityEvent{Type: "decision_saved", OrganizationID: 3, DecisionID: 8})

	select {
	case event := <-events:
		assert.Equal(t, uint(7), event.DecisionID)
		assert.False(t, event.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}

	select {
	case event := <-events:
		t.Fatalf("unexpected event %+v", event)
	default:
	}

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)

	// publishing without subscribers must not block
	hub.Publish(utils.ActivityEvent{OrganizationID: 1})
}
