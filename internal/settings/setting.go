package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// Player settings keys
const (
	KeyDefaultPlacement    = "default_placement"
	KeyCaptureDebounceMs   = "capture_debounce_ms"
	KeyArmingWindowMs      = "arming_window_ms"
	KeyRecordingTTLMinutes = "recording_session_ttl_minutes"
	KeyAllowedOrigins      = "allowed_origins"
)

var settingCache *cache.Cache[string, string]

// SetupDefaultSettings initializes default settings in the database
func SetupDefaultSettings(dbConn *gorm.DB) error {
	settings := []Setting{
		{Key: KeyDefaultPlacement, Value: "right"},
		{Key: KeyCaptureDebounceMs, Value: "1000"},
		{Key: KeyArmingWindowMs, Value: "2000"},
		{Key: KeyRecordingTTLMinutes, Value: "120"},
		{Key: KeyAllowedOrigins, Value: ""},
	}
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, setting := range settings {
			// Use raw SQL for upsert
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				slog.Default().Error("Failed to upsert setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	// Initialize the cache
	loadCache(dbConn, slog.Default())

	return err
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// UpdateSetting updates a setting in the database using a transaction
func UpdateSetting(dbConn *gorm.DB, key string, value string) error {
	tx := dbConn.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	result := tx.Model(&Setting{}).Where("key = ?", key).Update("value", value)
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update setting: %w", result.Error)
	}

	// If no rows were affected, the setting might not exist - try to create it
	if result.RowsAffected == 0 {
		setting := Setting{
			Key:   key,
			Value: value,
		}
		if err := tx.Create(&setting).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create setting: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Clear and reload the cache after successful update
	if settingCache != nil {
		settingCache.Clear()
	}
	loadCache(dbConn, slog.Default())

	return nil
}

// CreateOrUpdateSetting creates a new setting or updates an existing one
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	var count int64
	if err := dbConn.Model(&Setting{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check if setting exists: %w", err)
	}

	if count > 0 {
		return UpdateSetting(dbConn, key, value)
	}

	setting := Setting{
		Key:   key,
		Value: value,
	}
	if err := dbConn.Create(&setting).Error; err != nil {
		return fmt.Errorf("failed to create setting: %w", err)
	}
	return nil
}

// loadCache initializes the TTL cache over the settings table. The cache
// backs the hot read path used on every capture and player request.
func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) (string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return "", err
		}
		return value, nil
	}
	settingCache = cache.NewCache[string, string](logger, 5*time.Minute, fetchFunc)
}

func cachedSetting(db *gorm.DB, key string) string {
	if settingCache != nil {
		if value, err := settingCache.Get(key); err == nil {
			return value
		}
	}
	value, _ := GetSetting(db, key)
	return value
}

// PlayerConfig bundles the player-facing defaults served to the SDK and
// used by the recording endpoints.
type PlayerConfig struct {
	DefaultPlacement string
	CaptureDebounce  time.Duration
	ArmingWindow     time.Duration
	RecordingTTL     time.Duration
	AllowedOrigins   []string
}

// GetPlayerConfig assembles the player defaults from the settings table,
// falling back to the shipped defaults for blank or unparsable values.
func GetPlayerConfig(db *gorm.DB) PlayerConfig {
	cfg := PlayerConfig{
		DefaultPlacement: "right",
		CaptureDebounce:  time.Second,
		ArmingWindow:     2 * time.Second,
		RecordingTTL:     2 * time.Hour,
	}

	if value := strings.TrimSpace(cachedSetting(db, KeyDefaultPlacement)); value != "" {
		cfg.DefaultPlacement = value
	}
	if ms := parsePositiveInt(cachedSetting(db, KeyCaptureDebounceMs)); ms > 0 {
		cfg.CaptureDebounce = time.Duration(ms) * time.Millisecond
	}
	if ms := parsePositiveInt(cachedSetting(db, KeyArmingWindowMs)); ms > 0 {
		cfg.ArmingWindow = time.Duration(ms) * time.Millisecond
	}
	if minutes := parsePositiveInt(cachedSetting(db, KeyRecordingTTLMinutes)); minutes > 0 {
		cfg.RecordingTTL = time.Duration(minutes) * time.Minute
	}

	if raw := strings.TrimSpace(cachedSetting(db, KeyAllowedOrigins)); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	return cfg
}

func parsePositiveInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SettingResponse represents a setting key-value pair for API responses
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetAllSettingsForDisplay retrieves all settings for the admin screen
func GetAllSettingsForDisplay(db *gorm.DB) ([]SettingResponse, error) {
	var allSettings []Setting
	if err := db.Find(&allSettings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	result := make([]SettingResponse, 0, len(allSettings))
	for _, setting := range allSettings {
		result = append(result, SettingResponse{
			Key:   setting.Key,
			Value: setting.Value,
		})
	}
	return result, nil
}
