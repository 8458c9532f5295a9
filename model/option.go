package model

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/logger"
)

// Option is a runtime-mutable key/value setting persisted in the database.
// Values loaded here override the environment defaults in common/config.
type Option struct {
	Key   string `json:"key" gorm:"primaryKey"`
	Value string `json:"value"`
}

func AllOption() ([]*Option, error) {
	var options []*Option
	err := DB.Find(&options).Error
	return options, errors.Wrap(err, "load options")
}

// InitOptionMap seeds the in-memory option map with current config values and
// then overlays whatever the database holds.
func InitOptionMap() {
	config.OptionMapRWMutex.Lock()
	config.OptionMap = make(map[string]string)
	config.OptionMap["AppURL"] = config.AppURL
	config.OptionMap["AppKey"] = config.AppKey
	config.OptionMap["APIKeys"] = config.APIKeys
	config.OptionMap["ImageFormat"] = config.ImageFormat
	config.OptionMap["VideoFormat"] = config.VideoFormat
	config.OptionMap["AdminPasswordHash"] = config.AdminPasswordHash
	config.OptionMap["StaticStatsigID"] = config.StaticStatsigID
	config.OptionMap["CfClearance"] = config.CfClearance
	config.OptionMap["UserAgent"] = config.UserAgent
	config.OptionMap["FilterTags"] = config.FilterTags
	config.OptionMap["ChatThinkingEnabled"] = boolToOption(config.ChatThinkingDefault)
	config.OptionMap["DynamicStatsigEnabled"] = boolToOption(config.DynamicStatsig)
	config.OptionMap["ImageWSEnabled"] = boolToOption(config.ImageWSEnabled)
	config.OptionMap["ImageWSNsfwEnabled"] = boolToOption(config.ImageWSNsfw)
	config.OptionMapRWMutex.Unlock()
	loadOptionsFromDatabase()
}

func loadOptionsFromDatabase() {
	options, err := AllOption()
	if err != nil {
		logger.Logger.Error("failed to load options from database", zap.Error(err))
		return
	}
	for _, option := range options {
		if option.Value == "" {
			continue
		}
		if err := updateOptionMap(option.Key, option.Value); err != nil {
			logger.Logger.Warn("failed to apply option",
				zap.String("key", option.Key), zap.Error(err))
		}
	}
}

// SyncOptions periodically re-reads options so multi-node deployments converge
// on admin edits without restarts.
func SyncOptions(frequency int) {
	for {
		time.Sleep(time.Duration(frequency) * time.Second)
		logger.Logger.Debug("syncing options from database")
		loadOptionsFromDatabase()
	}
}

// UpdateOption persists a single option and applies it to the running config.
func UpdateOption(key string, value string) error {
	option := Option{Key: key}
	if err := DB.FirstOrCreate(&option, Option{Key: key}).Error; err != nil {
		return errors.Wrapf(err, "upsert option %s", key)
	}
	option.Value = value
	if err := DB.Save(&option).Error; err != nil {
		return errors.Wrapf(err, "save option %s", key)
	}
	return updateOptionMap(key, value)
}

func updateOptionMap(key string, value string) (err error) {
	config.OptionMapRWMutex.Lock()
	defer config.OptionMapRWMutex.Unlock()
	config.OptionMap[key] = value
	if strings.HasSuffix(key, "Enabled") {
		boolValue := value == "true"
		switch key {
		case "ChatThinkingEnabled":
			config.ChatThinkingDefault = boolValue
		case "DynamicStatsigEnabled":
			config.DynamicStatsig = boolValue
		case "ImageWSEnabled":
			config.ImageWSEnabled = boolValue
		case "ImageWSNsfwEnabled":
			config.ImageWSNsfw = boolValue
		default:
			return errors.Errorf("unknown bool option: %s", key)
		}
		return nil
	}
	switch key {
	case "AppURL":
		config.AppURL = strings.TrimSuffix(value, "/")
	case "AppKey":
		config.AppKey = value
	case "APIKeys":
		config.APIKeys = value
	case "ImageFormat":
		if value != "url" && value != "b64_json" && value != "base64" {
			return errors.Errorf("invalid ImageFormat: %s", value)
		}
		config.ImageFormat = value
	case "VideoFormat":
		if value != "url" && value != "html" {
			return errors.Errorf("invalid VideoFormat: %s", value)
		}
		config.VideoFormat = value
	case "AdminPasswordHash":
		config.AdminPasswordHash = value
	case "StaticStatsigID":
		config.StaticStatsigID = value
	case "CfClearance":
		config.CfClearance = value
	case "UserAgent":
		config.UserAgent = value
	case "FilterTags":
		config.FilterTags = value
	default:
		return errors.Errorf("unknown option: %s", key)
	}
	return nil
}

func boolToOption(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
