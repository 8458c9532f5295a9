package batch

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common/config"
	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/pool"
	"github.com/fuchsia74/grok-api/relay/grok"
	"github.com/fuchsia74/grok-api/relay/retry"
)

// RefreshUsage re-probes rate limits for every token and folds the answers
// into the pool. A failed probe leaves the token's state untouched; the next
// scheduled refresh retries it.
func RefreshUsage(ctx context.Context, mgr *pool.Manager, tokens []string, task *Task) map[string]ItemResult {
	worker := func(ctx context.Context, token string) (any, error) {
		snap, err := mgr.SyncUsage(ctx, token, "")
		if err != nil {
			return nil, err
		}
		return snap, nil
	}
	return Run(ctx, tokens, worker, Options{
		MaxConcurrent: config.UsageMaxConcurrent,
		BatchSize:     config.UsageBatchSize,
		OnItem:        recordPlain(task),
		Cancelled:     cancelledFn(task),
	})
}

// NSFWOutcome is the per-token result row of an NSFW enablement run.
type NSFWOutcome struct {
	Success     bool   `json:"success"`
	HTTPStatus  int    `json:"http_status"`
	GrpcStatus  *int   `json:"grpc_status,omitempty"`
	GrpcMessage string `json:"grpc_message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// EnableNSFW walks every token through the age-gate chain: store a birth
// date, best-effort accept the current terms, then flip the NSFW feature
// control over gRPC-Web. Tokens that succeed gain the "nsfw" tag so the video
// router can find them. Failures are reported in the outcome rather than as
// worker errors so the aggregate result keeps the upstream detail per token.
func EnableNSFW(ctx context.Context, mgr *pool.Manager, tokens []string, task *Task) map[string]ItemResult {
	worker := func(ctx context.Context, token string) (any, error) {
		out := enableNSFWOnce(ctx, token)
		if out.Success {
			mgr.AddTag(token, "nsfw")
		}
		return out, nil
	}

	var onItem func(string, ItemResult)
	if task != nil {
		onItem = func(item string, res ItemResult) {
			out, _ := res.Data.(*NSFWOutcome)
			ok := out != nil && out.Success
			errMsg := res.Error
			if !ok && out != nil {
				errMsg = out.Error
			}
			task.Record(ok, helper.MaskTokenDisplay(item), nil, errMsg)
		}
	}

	return Run(ctx, tokens, worker, Options{
		MaxConcurrent: config.NSFWMaxConcurrent,
		BatchSize:     config.NSFWBatchSize,
		OnItem:        onItem,
		Cancelled:     cancelledFn(task),
	})
}

func enableNSFWOnce(ctx context.Context, token string) *NSFWOutcome {
	if err := grok.SetBirthDate(ctx, token); err != nil {
		return &NSFWOutcome{
			HTTPStatus: upstreamStatus(err),
			Error:      "Set birth date failed: " + err.Error(),
		}
	}

	// Accounts that accepted the terms long ago reject a re-accept; that
	// must not block the feature flip.
	if _, err := grok.AcceptTos(ctx, token); err != nil {
		logger.Logger.Debug("accept tos", zap.Error(err))
	}

	status, err := grok.EnableNSFW(ctx, token)
	if err != nil {
		out := &NSFWOutcome{
			HTTPStatus: upstreamStatus(err),
			Error:      err.Error(),
		}
		if status.Code > 0 {
			code := status.Code
			out.GrpcStatus = &code
			out.GrpcMessage = status.Message
		}
		return out
	}

	code := status.Code
	return &NSFWOutcome{
		Success:     true,
		HTTPStatus:  http.StatusOK,
		GrpcStatus:  &code,
		GrpcMessage: status.Message,
	}
}

// ClearAssets wipes the generated asset library of every token and stamps the
// pool with the clear time on success.
func ClearAssets(ctx context.Context, mgr *pool.Manager, tokens []string, task *Task) map[string]ItemResult {
	worker := func(ctx context.Context, token string) (any, error) {
		result, err := grok.DeleteAllAssets(ctx, token, config.AssetsDeleteBatchSize)
		if err != nil {
			return nil, err
		}
		mgr.MarkAssetClear(token)
		return result, nil
	}
	return Run(ctx, tokens, worker, Options{
		MaxConcurrent: config.AssetsMaxConcurrent,
		BatchSize:     config.AssetsBatchSize,
		OnItem:        recordPlain(task),
		Cancelled:     cancelledFn(task),
	})
}

// AssetDetail is one token's online asset count row.
type AssetDetail struct {
	Token            string `json:"token"`
	TokenMasked      string `json:"token_masked"`
	Count            int    `json:"count"`
	Status           string `json:"status"`
	LastAssetClearAt int64  `json:"last_asset_clear_at,omitempty"`
}

// LoadAssetDetails counts the online assets of every token. A count failure
// becomes an error row instead of aborting the run, so the overview still
// lists the account.
func LoadAssetDetails(ctx context.Context, mgr *pool.Manager, tokens []string, task *Task) map[string]ItemResult {
	worker := func(ctx context.Context, token string) (any, error) {
		detail := &AssetDetail{
			Token:       token,
			TokenMasked: helper.MaskTokenDisplay(token),
			Status:      "ok",
		}
		if info := mgr.Lookup(token); info != nil {
			detail.LastAssetClearAt = info.LastAssetClearAt
		}
		count, err := grok.CountAssets(ctx, token)
		if err != nil {
			detail.Status = "error: " + err.Error()
			return detail, nil
		}
		detail.Count = count
		return detail, nil
	}

	var onItem func(string, ItemResult)
	if task != nil {
		onItem = func(item string, res ItemResult) {
			detail, _ := res.Data.(*AssetDetail)
			ok := detail != nil && detail.Status == "ok"
			task.Record(ok, helper.MaskTokenDisplay(item), detail, "")
		}
	}

	return Run(ctx, tokens, worker, Options{
		MaxConcurrent: config.AssetsMaxConcurrent,
		BatchSize:     config.AssetsBatchSize,
		OnItem:        onItem,
		Cancelled:     cancelledFn(task),
	})
}

// recordPlain forwards item outcomes to the task with a masked item label.
func recordPlain(task *Task) func(string, ItemResult) {
	if task == nil {
		return nil
	}
	return func(item string, res ItemResult) {
		task.Record(res.Ok, helper.MaskTokenDisplay(item), nil, res.Error)
	}
}

func cancelledFn(task *Task) func() bool {
	if task == nil {
		return nil
	}
	return task.Cancelled
}

// upstreamStatus extracts the HTTP status carried by an upstream error,
// defaulting to 500 for transport failures.
func upstreamStatus(err error) int {
	var statusErr retry.StatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
