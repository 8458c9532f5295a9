package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fuchsia74/grok-api/common/env"
)

var (
	// SessionSecretEnvValue keeps the raw SESSION_SECRET input so other packages can warn about placeholder values.
	SessionSecretEnvValue = strings.TrimSpace(env.String("SESSION_SECRET", ""))
	// SessionSecret stores the effective session secret. When the provided secret is absent or has an unsupported length it is replaced or hashed to a 32-byte base64 token in init().
	SessionSecret = SessionSecretEnvValue

	// CookieMaxAgeHours controls how long admin session cookies stay valid. The value is interpreted in hours by the session store.
	CookieMaxAgeHours = env.Int("COOKIE_MAXAGE_HOURS", 168)
	// EnableCookieSecure forces the browser to send session cookies only over HTTPS when set to true.
	EnableCookieSecure = env.Bool("ENABLE_COOKIE_SECURE", false)

	// ServerPort overrides the --port flag when running inside container or PaaS environments.
	ServerPort = strings.TrimSpace(env.String("PORT", ""))
	// GinMode allows forcing Gin into release mode (or other modes) without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)
	// DebugSQLEnabled toggles per-query SQL logging when DEBUG_SQL=true.
	DebugSQLEnabled = env.Bool("DEBUG_SQL", false)

	// ShutdownTimeoutSec specifies the graceful shutdown timeout (seconds) for the HTTP server and background workers.
	ShutdownTimeoutSec = env.Int("SHUTDOWN_TIMEOUT", 360)

	// SyncFrequency controls how often (seconds) runtime options are re-read from the database.
	SyncFrequency = env.Int("SYNC_FREQUENCY", 600)

	// IsMasterNode marks the node that runs database migrations and background sync loops.
	IsMasterNode = env.String("NODE_TYPE", "master") != "slave"

	// RedisConnString defines the Redis connection string; leaving it empty disables Redis features.
	RedisConnString = strings.TrimSpace(env.String("REDIS_CONN_STRING", ""))
	// RedisMasterName enables Redis sentinel/cluster discovery when provided.
	RedisMasterName = strings.TrimSpace(env.String("REDIS_MASTER_NAME", ""))
	// RedisPassword supplies the Redis authentication password when required.
	RedisPassword = env.String("REDIS_PASSWORD", "")

	// SQLDSN provides the primary database DSN; empty indicates that SQLite should be used.
	SQLDSN = strings.TrimSpace(env.String("SQL_DSN", ""))
	// SQLitePath specifies the SQLite database file path when SQL_DSN is absent.
	SQLitePath = env.String("SQLITE_PATH", "grok-api.db")
	// SQLiteBusyTimeout configures SQLite busy timeout in milliseconds to mitigate locking errors.
	SQLiteBusyTimeout = env.Int("SQLITE_BUSY_TIMEOUT", 3000)
	// SQLMaxIdleConns controls the database pool's idle connection count.
	SQLMaxIdleConns = env.Int("SQL_MAX_IDLE_CONNS", 100)
	// SQLMaxOpenConns controls the database pool's maximum open connections.
	SQLMaxOpenConns = env.Int("SQL_MAX_OPEN_CONNS", 1000)
	// SQLMaxLifetimeSeconds sets how long database connections live before being recycled (seconds).
	SQLMaxLifetimeSeconds = env.Int("SQL_MAX_LIFETIME", 300)
)

// Upstream network settings.
var (
	// UpstreamTimeout bounds a single upstream HTTP request (seconds) including the response body for non-streaming calls.
	UpstreamTimeout = time.Second * time.Duration(env.Int("UPSTREAM_TIMEOUT", 120))
	// UpstreamConnectTimeout bounds TCP+TLS dialing to the upstream (seconds).
	UpstreamConnectTimeout = time.Second * time.Duration(env.Int("UPSTREAM_CONNECT_TIMEOUT", 30))
	// BaseProxyURL routes all upstream API traffic through an HTTP proxy when set.
	BaseProxyURL = strings.TrimSpace(env.String("BASE_PROXY_URL", ""))
	// AssetProxyURL overrides BaseProxyURL for asset-host traffic (uploads/downloads) when set.
	AssetProxyURL = strings.TrimSpace(env.String("ASSET_PROXY_URL", ""))
	// UserContentRequestProxy routes fetches of client-supplied URLs (chat image_url) through a separate proxy.
	UserContentRequestProxy = strings.TrimSpace(env.String("USER_CONTENT_REQUEST_PROXY", ""))
	// UserContentRequestTimeout bounds fetches of client-supplied URLs (seconds).
	UserContentRequestTimeout = env.Int("USER_CONTENT_REQUEST_TIMEOUT", 30)
	// BlockInternalUserContentRequests refuses client-supplied URLs that resolve to private address space.
	BlockInternalUserContentRequests = env.Bool("BLOCK_INTERNAL_USER_CONTENT_REQUESTS", false)
	// MaxInlineImageSizeMB caps how large a fetched or inline image may be before it is rejected (megabytes).
	MaxInlineImageSizeMB = env.Int("MAX_INLINE_IMAGE_SIZE_MB", 30)
)

// Browser fingerprint presented to the upstream.
var (
	// UserAgent is the User-Agent header sent on every upstream request.
	UserAgent = env.String("USER_AGENT", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36")
	// CfClearance is appended to the upstream cookie when the deployment sits behind a Cloudflare-challenged egress.
	CfClearance = strings.TrimSpace(env.String("CF_CLEARANCE", ""))
)

// Chat behavior defaults.
var (
	// ChatStreamDefault is used when a chat request omits the stream flag.
	ChatStreamDefault = env.Bool("CHAT_STREAM_DEFAULT", true)
	// ChatThinkingDefault emits <think> progress narration blocks when true and the request does not override it.
	ChatThinkingDefault = env.Bool("CHAT_THINKING_DEFAULT", false)
	// ChatTemporary asks the upstream to keep conversations out of user history.
	ChatTemporary = env.Bool("CHAT_TEMPORARY", true)
	// ChatDisableMemory disables upstream personalization memory for relayed conversations.
	ChatDisableMemory = env.Bool("CHAT_DISABLE_MEMORY", true)
	// DynamicStatsig regenerates the anti-bot statsig identifier per request instead of reusing the canned value.
	DynamicStatsig = env.Bool("DYNAMIC_STATSIG", true)
	// FilterTags lists upstream markup tags elided from relayed chat content, comma separated.
	FilterTags = env.String("FILTER_TAGS", "grok:render,xaiartifact,xai:tool_usage_card")
)

// Retry policy defaults (per upstream call).
var (
	// MaxRetry caps attempts per upstream call inside the retry engine.
	MaxRetry = env.Int("MAX_RETRY", 3)
	// RetryStatusCodes lists HTTP statuses eligible for local retry, comma separated.
	RetryStatusCodes = env.String("RETRY_STATUS_CODES", "401,429,403")
	// RetryBackoffBase is the floor of every computed backoff delay (seconds, fractional allowed).
	RetryBackoffBase = env.Float64("RETRY_BACKOFF_BASE", 0.5)
	// RetryBackoffFactor is the exponent base for full-jitter backoff growth.
	RetryBackoffFactor = env.Float64("RETRY_BACKOFF_FACTOR", 2.0)
	// RetryBackoffMax clamps any single backoff delay (seconds).
	RetryBackoffMax = env.Float64("RETRY_BACKOFF_MAX", 30.0)
	// RetryBudget caps the total sleep across all retries of one call (seconds).
	RetryBudget = env.Float64("RETRY_BUDGET", 90.0)
	// TokenMaxRetries bounds the cross-token fallover loop at the request entrypoints.
	TokenMaxRetries = env.Int("TOKEN_MAX_RETRIES", 3)
)

// Stream watchdog settings.
var (
	// StreamIdleTimeout aborts chat/image streams after this many seconds without an upstream line.
	StreamIdleTimeout = time.Second * time.Duration(env.Int("STREAM_IDLE_TIMEOUT", 45))
	// VideoIdleTimeout aborts video streams after this many seconds without an upstream line.
	VideoIdleTimeout = time.Second * time.Duration(env.Int("VIDEO_IDLE_TIMEOUT", 90))
)

// Image WebSocket generation settings.
var (
	// ImageWSEnabled routes image generations through the imagine WebSocket instead of the chat stream.
	ImageWSEnabled = env.Bool("IMAGE_WS", true)
	// ImageWSNsfw sets the enable_nsfw flag on WebSocket generation requests.
	ImageWSNsfw = env.Bool("IMAGE_WS_NSFW", true)
	// ImageWSBlockedSeconds is the grace window between the first medium-stage frame and a final frame before the stream is declared blocked.
	ImageWSBlockedSeconds = env.Int("IMAGE_WS_BLOCKED_SECONDS", 15)
	// ImageWSFinalMinBytes marks a frame as final when its blob exceeds this size, regardless of extension.
	ImageWSFinalMinBytes = env.Int("IMAGE_WS_FINAL_MIN_BYTES", 100000)
	// ImageWSMediumMinBytes separates medium-stage frames from previews by blob size.
	ImageWSMediumMinBytes = env.Int("IMAGE_WS_MEDIUM_MIN_BYTES", 30000)
)

// Token pool settings.
var (
	// TokenAutoRefresh re-syncs cooling tokens opportunistically on pool misses.
	TokenAutoRefresh = env.Bool("TOKEN_AUTO_REFRESH", true)
	// TokenRefreshIntervalHours is how stale a cooling basic token's last sync must be before it is re-synced.
	TokenRefreshIntervalHours = env.Int("TOKEN_REFRESH_INTERVAL_HOURS", 8)
	// TokenSuperRefreshIntervalHours is the re-sync staleness threshold for super-pool tokens.
	TokenSuperRefreshIntervalHours = env.Int("TOKEN_SUPER_REFRESH_INTERVAL_HOURS", 2)
	// TokenFailThreshold expires a token after this many consecutive 401 failures.
	TokenFailThreshold = env.Int("TOKEN_FAIL_THRESHOLD", 5)
	// TokenSaveDelayMS batches pool mutations for this long before persisting.
	TokenSaveDelayMS = env.Int("TOKEN_SAVE_DELAY_MS", 500)
	// TokenReloadIntervalSec is the staleness threshold for reloading the pool view from storage.
	TokenReloadIntervalSec = env.Int("TOKEN_RELOAD_INTERVAL_SEC", 30)
)

// Asset cache settings.
var (
	// CacheAutoClean schedules LRU eviction after every cache insert.
	CacheAutoClean = env.Bool("CACHE_AUTO_CLEAN", true)
	// CacheLimitMB caps each media type's cache directory size in megabytes.
	CacheLimitMB = env.Int("CACHE_LIMIT_MB", 1024)
	// DataDir is the root directory for the SQLite file and the asset cache.
	DataDir = env.String("DATA_DIR", "./data")
)

// Per-endpoint concurrency and batching limits.
var (
	// AssetsMaxConcurrent caps concurrent asset list/delete/download calls.
	AssetsMaxConcurrent = env.Int("ASSETS_MAX_CONCURRENT", 25)
	// AssetsDeleteBatchSize chunks bulk asset deletions.
	AssetsDeleteBatchSize = env.Int("ASSETS_DELETE_BATCH_SIZE", 10)
	// AssetsBatchSize chunks batch asset operations between cancellation checks.
	AssetsBatchSize = env.Int("ASSETS_BATCH_SIZE", 10)
	// AssetsMaxTokens bounds the token count accepted by batch asset endpoints.
	AssetsMaxTokens = env.Int("ASSETS_MAX_TOKENS", 1000)
	// MediaMaxConcurrent caps concurrent media-post/video generations.
	MediaMaxConcurrent = env.Int("MEDIA_MAX_CONCURRENT", 50)
	// UploadMaxConcurrent caps concurrent attachment uploads within one request.
	UploadMaxConcurrent = env.Int("UPLOAD_MAX_CONCURRENT", 5)
	// UsageMaxConcurrent caps concurrent rate-limit probes.
	UsageMaxConcurrent = env.Int("USAGE_MAX_CONCURRENT", 25)
	// UsageBatchSize chunks batch usage refreshes between cancellation checks.
	UsageBatchSize = env.Int("USAGE_BATCH_SIZE", 50)
	// UsageMaxTokens bounds the token count accepted by the batch usage endpoint.
	UsageMaxTokens = env.Int("USAGE_MAX_TOKENS", 1000)
	// NSFWMaxConcurrent caps concurrent NSFW enablement calls.
	NSFWMaxConcurrent = env.Int("NSFW_MAX_CONCURRENT", 10)
	// NSFWBatchSize chunks batch NSFW operations between cancellation checks.
	NSFWBatchSize = env.Int("NSFW_BATCH_SIZE", 50)
	// NSFWMaxTokens bounds the token count accepted by the batch NSFW endpoint.
	NSFWMaxTokens = env.Int("NSFW_MAX_TOKENS", 1000)
	// RateLimitProbeCacheSec caches rate-limit probe responses per token to absorb bursty syncs.
	RateLimitProbeCacheSec = env.Int("RATE_LIMIT_PROBE_CACHE_SEC", 20)
)

// Observability.
var (
	// EnablePrometheusMetrics exposes the /metrics endpoint for Prometheus scrapers when true.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)
	// OnlyOneLogFile writes a single grok-api.log instead of per-day files.
	OnlyOneLogFile = env.Bool("ONLY_ONE_LOG_FILE", false)
	// LogRetentionDays deletes log files older than this many days; zero disables cleanup.
	LogRetentionDays = env.Int("LOG_RETENTION_DAYS", 0)
	// TraceRetentionDays deletes relay trace rows older than this many days; zero disables cleanup.
	TraceRetentionDays = env.Int("TRACE_RETENTION_DAYS", 7)
	// LogPushAPI posts error-level log entries to an external alert webhook when set.
	LogPushAPI = env.String("LOG_PUSH_API", "")
	// LogPushType labels alert pushes for the receiving webhook.
	LogPushType = env.String("LOG_PUSH_TYPE", "grok-api")
	// LogPushToken authenticates alert pushes.
	LogPushToken = env.String("LOG_PUSH_TOKEN", "")
)

// Smoke harness settings (cmd/smoke), aimed at a running deployment.
var (
	// SmokeAPIBase is the gateway the smoke harness tests.
	SmokeAPIBase = strings.TrimSpace(env.String("SMOKE_API_BASE", "http://localhost:3000"))
	// SmokeAPIKey authenticates the harness; empty works against deployments with client auth disabled.
	SmokeAPIKey = strings.TrimSpace(env.String("SMOKE_API_KEY", ""))
	// SmokeChatModels lists chat models to sweep, comma separated.
	SmokeChatModels = env.String("SMOKE_CHAT_MODELS", "grok-4-fast")
	// SmokeImageModels lists image models to sweep, comma separated.
	SmokeImageModels = env.String("SMOKE_IMAGE_MODELS", "grok-imagine-1.0")
	// SmokeVideoModels lists video models to sweep; empty skips video, which burns quota fast.
	SmokeVideoModels = env.String("SMOKE_VIDEO_MODELS", "")
	// SmokeVariants narrows the sweep to named checks, comma separated; empty runs all.
	SmokeVariants = env.String("SMOKE_VARIANTS", "")
)

func init() {
	if SessionSecretEnvValue == "" {
		fmt.Println("SESSION_SECRET not set, using random secret")
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("failed to generate random secret: %v", err))
		}

		SessionSecret = base64.StdEncoding.EncodeToString(key)
	} else if !slices.Contains([]int{16, 24, 32}, len(SessionSecretEnvValue)) {
		hashed := sha256.Sum256([]byte(SessionSecretEnvValue))
		SessionSecret = base64.StdEncoding.EncodeToString(hashed[:32])
	}
}

// Runtime-mutable options, loaded from the options table at boot and synced
// periodically. Defaults here apply on first boot before any admin edit.
var (
	// AppURL forms absolute URLs for rewritten asset links; empty keeps upstream URLs.
	AppURL = strings.TrimSuffix(strings.TrimSpace(env.String("APP_URL", "")), "/")
	// AppKey protects the admin surface (batch endpoints, token CRUD).
	AppKey = env.String("APP_KEY", "grok2api")
	// APIKeys lists client bearer keys accepted on /v1, comma separated. Empty disables client auth.
	APIKeys = env.String("API_KEYS", "")
	// ImageFormat selects how generated images are returned: url, b64_json or base64.
	ImageFormat = "url"
	// VideoFormat selects how generated videos are returned: url or html.
	VideoFormat = "html"
	// AdminPasswordHash holds the bcrypt hash for the admin session login; empty disables session login.
	AdminPasswordHash = ""
	// StaticStatsigID overrides the canned statsig identifier when set.
	StaticStatsigID = ""
)

var (
	// OptionMap caches key/value pairs loaded from the database options table.
	OptionMap map[string]string
	// OptionMapRWMutex guards concurrent reads/writes to OptionMap.
	OptionMapRWMutex sync.RWMutex
)

// ParseRetryStatusCodes converts RetryStatusCodes into a set. Invalid
// entries are skipped.
func ParseRetryStatusCodes() map[int]bool {
	set := make(map[int]bool)
	for _, part := range strings.Split(RetryStatusCodes, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		set[code] = true
	}
	return set
}

// ParseFilterTags converts FilterTags into a slice, dropping empties.
func ParseFilterTags() []string {
	var tags []string
	for _, part := range strings.Split(FilterTags, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// ParseAPIKeys converts APIKeys into a set. An empty result means client
// auth is disabled.
func ParseAPIKeys() map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Split(APIKeys, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			set[part] = true
		}
	}
	return set
}
