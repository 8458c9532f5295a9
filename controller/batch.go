package controller

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok-api/batch"
	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/graceful"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/dto"
	"github.com/fuchsia74/grok-api/monitor"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/relay/grok"
)

// batchOp runs one bulk maintenance job over a token list and reports the
// outcome per token.
type batchOp func(ctx context.Context, mgr *pool.Manager, tokens []string, task *batch.Task) map[string]batch.ItemResult

// StartUsageRefresh re-probes rate limits for the requested tokens.
func StartUsageRefresh(c *gin.Context) {
	startBatch(c, "usage-refresh", config.UsageMaxTokens, batch.RefreshUsage)
}

// StartNSFWEnable walks tokens through the age gate and flips the NSFW
// feature flag upstream.
func StartNSFWEnable(c *gin.Context) {
	startBatch(c, "nsfw-enable", config.NSFWMaxTokens, batch.EnableNSFW)
}

// StartAssetClear deletes generated assets on the upstream accounts.
func StartAssetClear(c *gin.Context) {
	startBatch(c, "asset-clear", config.AssetsMaxTokens, batch.ClearAssets)
}

// StartAssetLoad lists the per-account asset inventories.
func StartAssetLoad(c *gin.Context) {
	startBatch(c, "asset-load", config.AssetsMaxTokens, batch.LoadAssetDetails)
}

// startBatch resolves the token selection, registers a task, and launches
// the runner. The response carries the initial snapshot; progress flows over
// the task stream.
func startBatch(c *gin.Context, name string, maxTokens int, op batchOp) {
	req := new(dto.BatchTokensRequest)
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			helper.RespondError(c, err)
			return
		}
	}

	mgr := pool.Default()
	if err := mgr.ReloadIfStale(c.Request.Context()); err != nil {
		helper.RespondError(c, err)
		return
	}

	tokens := resolveBatchTokens(mgr, req)
	if len(tokens) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "no tokens to process",
		})
		return
	}
	if len(tokens) > maxTokens {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": fmt.Sprintf("request holds %d tokens, the endpoint accepts at most %d", len(tokens), maxTokens),
		})
		return
	}

	task := batch.Default().Create(len(tokens))
	monitor.BatchTaskStarted()
	// The runner must outlive the admin request, so it gets a background
	// context; cancellation goes through the task instead.
	graceful.GoCritical(context.Background(), name, func(ctx context.Context) {
		defer monitor.BatchTaskDone()
		defer batch.Default().Expire(task.ID)

		results := op(ctx, mgr, tokens, task)
		if task.Cancelled() {
			task.FinishCancelled()
			return
		}
		task.Finish(maskResults(results), "")
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    task.Snapshot(),
	})
}

// resolveBatchTokens turns the request into a deduplicated token list; an
// empty selection falls back to the live pool view.
func resolveBatchTokens(mgr *pool.Manager, req *dto.BatchTokensRequest) []string {
	if len(req.Tokens) > 0 {
		tokens := make([]string, 0, len(req.Tokens))
		seen := make(map[string]bool, len(req.Tokens))
		for _, raw := range req.Tokens {
			token := grok.NormalizeToken(raw)
			if token == "" || seen[token] {
				continue
			}
			seen[token] = true
			tokens = append(tokens, token)
		}
		return tokens
	}

	rows := mgr.All(req.Pool)
	tokens := make([]string, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, row.Token)
	}
	return tokens
}

// maskResults rekeys a result map by display-masked token so terminal
// events never carry raw credentials.
func maskResults(results map[string]batch.ItemResult) map[string]batch.ItemResult {
	masked := make(map[string]batch.ItemResult, len(results))
	for token, res := range results {
		masked[helper.MaskTokenDisplay(token)] = res
	}
	return masked
}

// GetBatchTask returns the task's current counters.
func GetBatchTask(c *gin.Context) {
	task := batch.Default().Get(c.Param("task_id"))
	if task == nil {
		helper.RespondError(c, errors.Errorf("unknown task %s", c.Param("task_id")))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    task.Snapshot(),
	})
}

// StreamBatchTask follows a task's progress over SSE until its terminal
// event.
func StreamBatchTask(c *gin.Context) {
	task := batch.Default().Get(c.Param("task_id"))
	if task == nil {
		helper.RespondError(c, errors.Errorf("unknown task %s", c.Param("task_id")))
		return
	}
	batch.ServeSSE(c, task)
}

// CancelBatchTask requests cooperative cancellation. The runner drains
// in-flight items and publishes the cancelled terminal event.
func CancelBatchTask(c *gin.Context) {
	task := batch.Default().Get(c.Param("task_id"))
	if task == nil {
		helper.RespondError(c, errors.Errorf("unknown task %s", c.Param("task_id")))
		return
	}
	task.Cancel()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    task.Snapshot(),
	})
}
