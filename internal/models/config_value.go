package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// ConfigFormat tags a config value with its type. The tag selects the
// validator and the decoder, so a stored value is always well-formed for
// its declared format.
type ConfigFormat string

const (
	FormatText  ConfigFormat = "text"
	FormatInt   ConfigFormat = "int"
	FormatFloat ConfigFormat = "float"
	FormatBool  ConfigFormat = "bool"
	FormatJSON  ConfigFormat = "json"
)

// ConfigEntry is one system configuration value with its format tag.
type ConfigEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	Key    string       `json:"key" gorm:"uniqueIndex;size:128"`
	Desc   string       `json:"desc,omitempty" gorm:"size:300"`
	Format ConfigFormat `json:"format" gorm:"size:12;default:'text'"`
	Value  string       `json:"value" gorm:"type:text"`
	Public bool         `json:"public"`
}

func (ConfigEntry) TableName() string {
	return "config_entries"
}

// Validate checks the value against its format tag.
func (e *ConfigEntry) Validate() error {
	switch e.Format {
	case FormatText, "":
		return nil
	case FormatInt:
		if _, err := strconv.ParseInt(e.Value, 10, 64); err != nil {
			return fmt.Errorf("%w: %q is not an int", ErrValidation, e.Value)
		}
	case FormatFloat:
		if _, err := strconv.ParseFloat(e.Value, 64); err != nil {
			return fmt.Errorf("%w: %q is not a float", ErrValidation, e.Value)
		}
	case FormatBool:
		if _, err := strconv.ParseBool(e.Value); err != nil {
			return fmt.Errorf("%w: %q is not a bool", ErrValidation, e.Value)
		}
	case FormatJSON:
		if !json.Valid([]byte(e.Value)) {
			return fmt.Errorf("%w: value is not valid JSON", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown config format %q", ErrValidation, e.Format)
	}
	return nil
}

// SetConfigValue validates and upserts a config entry.
func SetConfigValue(db *gorm.DB, key string, format ConfigFormat, value, desc string) error {
	entry := ConfigEntry{Key: key, Format: format, Value: value, Desc: desc}
	if err := entry.Validate(); err != nil {
		return err
	}

	var existing ConfigEntry
	err := db.Where("key = ?", key).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return db.Create(&entry).Error
	}
	if err != nil {
		return err
	}
	existing.Format = format
	existing.Value = value
	if desc != "" {
		existing.Desc = desc
	}
	return db.Save(&existing).Error
}

// GetConfigValue returns the raw value for a key, or the fallback.
func GetConfigValue(db *gorm.DB, key, fallback string) string {
	var entry ConfigEntry
	if err := db.Where("key = ?", key).First(&entry).Error; err != nil {
		return fallback
	}
	return entry.Value
}

// GetConfigInt returns an int config value, or the fallback when the key is
// absent or not tagged as an int.
func GetConfigInt(db *gorm.DB, key string, fallback int) int {
	var entry ConfigEntry
	if err := db.Where("key = ?", key).First(&entry).Error; err != nil {
		return fallback
	}
	if entry.Format != FormatInt {
		return fallback
	}
	return cast.ToInt(entry.Value)
}

// GetConfigBool returns a bool config value, or the fallback.
func GetConfigBool(db *gorm.DB, key string, fallback bool) bool {
	var entry ConfigEntry
	if err := db.Where("key = ?", key).First(&entry).Error; err != nil {
		return fallback
	}
	if entry.Format != FormatBool {
		return fallback
	}
	return cast.ToBool(entry.Value)
}
