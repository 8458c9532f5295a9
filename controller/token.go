package controller

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/dto"
	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/relay/grok"
)

// TokenView is a credential row as the admin panel sees it: same fields as
// the stored row but with the secret masked.
type TokenView struct {
	Id             int    `json:"id"`
	Token          string `json:"token"`
	Pool           string `json:"pool"`
	Status         int    `json:"status"`
	Quota          int    `json:"quota"`
	UseCount       int    `json:"use_count"`
	FailCount      int    `json:"fail_count"`
	LastFailReason string `json:"last_fail_reason,omitempty"`
	Tags           string `json:"tags,omitempty"`
	Note           string `json:"note,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	LastUsedAt     int64  `json:"last_used_at"`
	LastSyncAt     int64  `json:"last_sync_at"`
}

func tokenView(row *model.TokenInfo) (*TokenView, error) {
	view := new(TokenView)
	if err := copier.Copy(view, row); err != nil {
		return nil, errors.Wrap(err, "map token row")
	}
	view.Token = helper.MaskTokenDisplay(row.Token)
	return view, nil
}

// GetAllTokens lists the live pool view, which carries fresher counters
// than the database rows between persister flushes.
func GetAllTokens(c *gin.Context) {
	mgr := pool.Default()
	if err := mgr.ReloadIfStale(c.Request.Context()); err != nil {
		helper.RespondError(c, err)
		return
	}

	poolName := c.Query("pool")
	rows := mgr.All(poolName)
	views := make([]*TokenView, 0, len(rows))
	for _, row := range rows {
		view, err := tokenView(row)
		if err != nil {
			helper.RespondError(c, err)
			return
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    views,
		"total":   len(views),
		"stats": gin.H{
			model.PoolBasic: mgr.PoolStats(model.PoolBasic),
			model.PoolSuper: mgr.PoolStats(model.PoolSuper),
		},
	})
}

// GetToken returns a single credential row by id.
func GetToken(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		helper.RespondError(c, errors.New("token id must be an integer"))
		return
	}

	row, err := model.GetTokenById(id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	view, err := tokenView(row)
	if err != nil {
		helper.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    view,
	})
}

// AddTokens imports a batch of credentials into one pool. Tokens already
// stored are skipped, never rejected, so operators can paste the same dump
// twice without bookkeeping.
func AddTokens(c *gin.Context) {
	req := new(dto.TokenImportRequest)
	if err := c.ShouldBindJSON(req); err != nil {
		helper.RespondError(c, err)
		return
	}

	poolName := req.Pool
	if poolName == "" {
		poolName = model.PoolBasic
	}

	rows := make([]*model.TokenInfo, 0, len(req.Tokens))
	seen := make(map[string]bool, len(req.Tokens))
	for _, raw := range req.Tokens {
		token := grok.NormalizeToken(raw)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		rows = append(rows, &model.TokenInfo{
			Token:  token,
			Pool:   poolName,
			Status: model.TokenStatusActive,
			Quota:  pool.DefaultQuotaFor(poolName),
		})
	}
	if len(rows) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "no usable tokens in request",
		})
		return
	}

	fresh, err := model.InsertTokens(c.Request.Context(), rows)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	pool.Default().Adopt(fresh...)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data": gin.H{
			"pool":     poolName,
			"imported": len(fresh),
			"skipped":  len(req.Tokens) - len(fresh),
		},
	})
}

// UpdateToken patches a stored credential and resyncs the live pool view.
// Only fields present in the body change; a pool move is a remove plus
// re-adopt so the scheduler never sees the token twice.
func UpdateToken(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		helper.RespondError(c, errors.New("token id must be an integer"))
		return
	}

	patch := new(dto.TokenUpdateRequest)
	if err = c.ShouldBindJSON(patch); err != nil {
		helper.RespondError(c, err)
		return
	}

	row, err := model.GetTokenById(id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}

	prevStatus := row.Status
	if patch.Pool != nil {
		row.Pool = *patch.Pool
	}
	if patch.Status != nil {
		row.Status = *patch.Status
	}
	if patch.Quota != nil {
		row.Quota = *patch.Quota
	}
	if patch.Tags != nil {
		row.Tags = strings.TrimSpace(*patch.Tags)
	}
	if patch.Note != nil {
		row.Note = *patch.Note
	}

	// Reactivation clears the failure ledger so the scheduler trusts the
	// token again instead of cooling it on the next miss.
	if row.Status == model.TokenStatusActive && prevStatus != model.TokenStatusActive {
		row.FailCount = 0
		row.LastFailReason = ""
	}

	// A status or quota patch must leave the row lawful: zero quota cannot
	// stay active, so the stored and adopted row re-derives its state.
	if patch.Status != nil || patch.Quota != nil {
		pool.RecomputeState(row)
	}

	if err = model.UpdateTokenInfo(c.Request.Context(), row); err != nil {
		helper.RespondError(c, err)
		return
	}

	mgr := pool.Default()
	mgr.Remove(row.Token)
	mgr.Adopt(row)

	view, err := tokenView(row)
	if err != nil {
		helper.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    view,
	})
}

// DeleteToken drops a credential from storage and from the live pool.
func DeleteToken(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		helper.RespondError(c, errors.New("token id must be an integer"))
		return
	}

	row, err := model.GetTokenById(id)
	if err != nil {
		helper.RespondError(c, err)
		return
	}

	if err = model.DeleteTokenById(c.Request.Context(), id); err != nil {
		helper.RespondError(c, err)
		return
	}
	pool.Default().Remove(row.Token)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
	})
}
