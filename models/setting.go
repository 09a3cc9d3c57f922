package models

import "gorm.io/gorm"

// Setting is a runtime-editable configuration value
type Setting struct {
	gorm.Model
	Group string `gorm:"column:group_key;not null;uniqueIndex:idx_setting;size:100" json:"group"`
	Key   string `gorm:"not null;uniqueIndex:idx_setting;size:100" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}
