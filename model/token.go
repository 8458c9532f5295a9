package model

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
)

const (
	TokenStatusActive   = 1 // don't use 0, 0 is the default value!
	TokenStatusCooling  = 2 // also don't use 0
	TokenStatusExpired  = 3
	TokenStatusDisabled = 4
)

const (
	PoolBasic = "basic"
	PoolSuper = "super"
)

// TokenInfo is one harvested upstream session credential together with its
// health bookkeeping. The pool manager owns the live state; rows here are the
// durable copy written by the batched save loop.
type TokenInfo struct {
	Id               int    `json:"id"`
	Token            string `json:"token" gorm:"type:varchar(512);uniqueIndex"`
	Pool             string `json:"pool" gorm:"type:varchar(16);index;default:basic"`
	Status           int    `json:"status" gorm:"default:1"`
	Quota            int    `json:"quota" gorm:"default:0"`
	UseCount         int    `json:"use_count" gorm:"default:0"`
	FailCount        int    `json:"fail_count" gorm:"default:0"`
	LastFailReason   string `json:"last_fail_reason" gorm:"type:text"`
	Tags             string `json:"tags" gorm:"type:text"` // comma separated, e.g. "nsfw"
	Note             string `json:"note" gorm:"type:text"`
	CreatedAt        int64  `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt        int64  `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
	LastUsedAt       int64  `json:"last_used_at" gorm:"bigint;default:0"`
	LastSyncAt       int64  `json:"last_sync_at" gorm:"bigint;default:0"`
	LastFailAt       int64  `json:"last_fail_at" gorm:"bigint;default:0"`
	LastAssetClearAt int64  `json:"last_asset_clear_at" gorm:"bigint;default:0"`
}

// HasTag reports whether the comma separated Tags column contains tag.
func (t *TokenInfo) HasTag(tag string) bool {
	if t.Tags == "" {
		return false
	}
	for _, existing := range strings.Split(t.Tags, ",") {
		if strings.TrimSpace(existing) == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag to the Tags column if absent. Returns true when the
// row changed.
func (t *TokenInfo) AddTag(tag string) bool {
	if t.HasTag(tag) {
		return false
	}
	if t.Tags == "" {
		t.Tags = tag
	} else {
		t.Tags += "," + tag
	}
	return true
}

// TagList splits the Tags column, dropping empties.
func (t *TokenInfo) TagList() []string {
	if t.Tags == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(t.Tags, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// AllTokens loads every stored token ordered by id. Pass a pool name to
// restrict the result, or "" for all pools.
func AllTokens(pool string) ([]*TokenInfo, error) {
	if DB == nil {
		return nil, errors.New("database is not initialized")
	}
	var tokens []*TokenInfo
	query := DB.Order("id asc")
	if pool != "" {
		query = query.Where("pool = ?", pool)
	}
	if err := query.Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "load tokens")
	}
	return tokens, nil
}

func GetTokenById(id int) (*TokenInfo, error) {
	if id == 0 {
		return nil, errors.New("id is empty!")
	}
	token := TokenInfo{Id: id}
	if err := DB.First(&token, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get token by id %d", id)
	}
	return &token, nil
}

// InsertTokens stores new tokens, silently skipping values that already
// exist. It returns the rows actually written.
func InsertTokens(ctx context.Context, tokens []*TokenInfo) ([]*TokenInfo, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(tokens))
	for _, t := range tokens {
		values = append(values, t.Token)
	}

	var existing []string
	if err := DB.Model(&TokenInfo{}).Where("token IN ?", values).
		Pluck("token", &existing).Error; err != nil {
		return nil, errors.Wrap(err, "check existing tokens")
	}
	known := make(map[string]bool, len(existing))
	for _, v := range existing {
		known[v] = true
	}

	var fresh []*TokenInfo
	for _, t := range tokens {
		if known[t.Token] {
			continue
		}
		known[t.Token] = true
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	err := runWithSQLiteBusyRetry(ctx, func() error {
		return DB.Create(&fresh).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "insert tokens")
	}
	return fresh, nil
}

// UpdateTokenInfo persists every column of the given row.
func UpdateTokenInfo(ctx context.Context, token *TokenInfo) error {
	if token.Id == 0 {
		return errors.New("id is empty!")
	}
	err := runWithSQLiteBusyRetry(ctx, func() error {
		return DB.Save(token).Error
	})
	return errors.Wrapf(err, "update token %d", token.Id)
}

func DeleteTokenById(ctx context.Context, id int) error {
	if id == 0 {
		return errors.New("id is empty!")
	}
	err := runWithSQLiteBusyRetry(ctx, func() error {
		result := DB.Delete(&TokenInfo{Id: id})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return errors.Wrapf(err, "delete token %d", id)
}

// tokenStateColumns are the columns the pool save loop is allowed to touch.
// Keep admin-managed columns (pool, note) out so concurrent edits survive.
var tokenStateColumns = []string{
	"status", "quota", "use_count", "fail_count", "last_fail_reason",
	"tags", "last_used_at", "last_sync_at", "last_fail_at", "last_asset_clear_at",
}

// SaveTokenStates flushes dirty pool state to storage in one transaction.
func SaveTokenStates(ctx context.Context, tokens []*TokenInfo) error {
	if len(tokens) == 0 {
		return nil
	}
	err := runWithSQLiteBusyRetry(ctx, func() error {
		return DB.Transaction(func(tx *gorm.DB) error {
			for _, t := range tokens {
				if t.Id == 0 {
					continue
				}
				updates := map[string]any{
					"status":              t.Status,
					"quota":               t.Quota,
					"use_count":           t.UseCount,
					"fail_count":          t.FailCount,
					"last_fail_reason":    t.LastFailReason,
					"tags":                t.Tags,
					"last_used_at":        t.LastUsedAt,
					"last_sync_at":        t.LastSyncAt,
					"last_fail_at":        t.LastFailAt,
					"last_asset_clear_at": t.LastAssetClearAt,
				}
				if err := tx.Model(&TokenInfo{}).Where("id = ?", t.Id).
					Updates(updates).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
	return errors.Wrap(err, "save token states")
}

// PoolStat is one row of the aggregate pool health report.
type PoolStat struct {
	Pool   string `json:"pool"`
	Status int    `json:"status"`
	Count  int64  `json:"count"`
}

// CountTokensByPoolAndStatus aggregates stored tokens for the status surface.
func CountTokensByPoolAndStatus() ([]PoolStat, error) {
	var stats []PoolStat
	err := DB.Model(&TokenInfo{}).
		Select("pool, status, count(*) as count").
		Group("pool").Group("status").
		Scan(&stats).Error
	if err != nil {
		return nil, errors.Wrap(err, "count tokens")
	}
	return stats, nil
}
