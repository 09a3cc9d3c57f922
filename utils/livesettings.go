package utils

import (
	"errors"
	"fmt"
	"strconv"

	"econsensus/config"
	"econsensus/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostByEmailSettings is the decoded PostByEmail configuration group
type PostByEmailSettings struct {
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	Server     string `json:"server"`
	Port       int    `json:"port"`
	SSLEnabled bool   `json:"ssl_enabled"`
}

// Configured reports whether there is a mailbox to poll
func (s *PostByEmailSettings) Configured() bool {
	return s.Server != ""
}

// Address returns host:port, defaulting the port by SSL mode
func (s *PostByEmailSettings) Address() string {
	port := s.Port
	if port == 0 {
		port = 143
		if s.SSLEnabled {
			port = 993
		}
	}
	return fmt.Sprintf("%s:%d", s.Server, port)
}

// LoadSettingGroup returns the raw values of a group, defaults filled in
func LoadSettingGroup(db *gorm.DB, group config.ConfigurationGroup) (map[string]string, error) {
	values := make(map[string]string, len(group.Values))
	for _, v := range group.Values {
		values[v.Key] = v.Default
	}

	var rows []models.Setting
	if err := db.Where("group_key = ?", group.Key).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := group.Value(row.Key); ok {
			values[row.Key] = row.Value
		}
	}
	return values, nil
}

// SaveSetting validates and stores one value of a group
func SaveSetting(db *gorm.DB, group config.ConfigurationGroup, key, value string) error {
	declared, ok := group.Value(key)
	if !ok {
		return fmt.Errorf("unknown setting %s.%s", group.Key, key)
	}

	switch declared.Kind {
	case config.IntegerValue:
		if value != "" {
			if _, err := strconv.Atoi(value); err != nil {
				return fmt.Errorf("%s must be a whole number", key)
			}
		}
	case config.BooleanValue:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
	case config.PasswordValue:
		sealed, err := Encrypt(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", key, err)
		}
		value = sealed
	}

	setting := models.Setting{Group: group.Key, Key: key, Value: value}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_key"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

// LoadPostByEmail reads the PostByEmail group with the password decrypted
func LoadPostByEmail(db *gorm.DB) (*PostByEmailSettings, error) {
	values, err := LoadSettingGroup(db, config.PostByEmailGroup)
	if err != nil {
		return nil, err
	}

	settings := &PostByEmailSettings{
		Username: values[config.PostByEmailUsername],
		Server:   values[config.PostByEmailServer],
	}
	if port := values[config.PostByEmailPort]; port != "" {
		if settings.Port, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid PORT setting: %w", err)
		}
	}
	if ssl := values[config.PostByEmailSSLEnabled]; ssl != "" {
		if settings.SSLEnabled, err = strconv.ParseBool(ssl); err != nil {
			return nil, fmt.Errorf("invalid SSL_ENABLED setting: %w", err)
		}
	}
	if settings.Password, err = Decrypt(values[config.PostByEmailPassword]); err != nil {
		return nil, errors.New("failed to decrypt PASSWORD setting")
	}
	return settings, nil
}

// SavePostByEmail stores every value of the PostByEmail group
func SavePostByEmail(db *gorm.DB, settings *PostByEmailSettings) error {
	return db.Transaction(func(tx *gorm.DB) error {
		values := map[string]string{
			config.PostByEmailUsername:   settings.Username,
			config.PostByEmailPassword:   settings.Password,
			config.PostByEmailServer:     settings.Server,
			config.PostByEmailPort:       strconv.Itoa(settings.Port),
			config.PostByEmailSSLEnabled: strconv.FormatBool(settings.SSLEnabled),
		}
		for _, declared := range config.PostByEmailGroup.Values {
			if err := SaveSetting(tx, config.PostByEmailGroup, declared.Key, values[declared.Key]); err != nil {
				return err
			}
		}
		return nil
	})
}
