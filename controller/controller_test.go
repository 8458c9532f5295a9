package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fuchsia74/grok-api/common/logger"
	"github.com/fuchsia74/grok-api/dto"
	"github.com/fuchsia74/grok-api/model"
	"github.com/fuchsia74/grok-api/pool"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := dto.RegisterCustomValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// Credentials long enough for MaskTokenDisplay to actually mask them.
const (
	tokenAlpha = "alpha-0123456789abcdef0123456789abcdef"
	tokenBeta  = "beta-0123456789abcdef0123456789abcdef"
)

// openTestDB swaps the shared handle for an isolated in-memory store.
func openTestDB(t *testing.T) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.TokenInfo{}, &model.Option{}, &model.Trace{}))

	orig := model.DB
	model.DB = db
	t.Cleanup(func() { model.DB = orig })
}

// seedTokens stores the rows and reloads the live pool, so handlers observe
// exactly the seeded state regardless of what earlier tests left behind.
func seedTokens(t *testing.T, rows ...*model.TokenInfo) {
	t.Helper()

	if len(rows) > 0 {
		_, err := model.InsertTokens(context.Background(), rows)
		require.NoError(t, err)
	}
	require.NoError(t, pool.Default().Load(context.Background()))
}

func testEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(func(c *gin.Context) { gmw.SetLogger(c, logger.Logger) })
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

// envelope decodes the admin response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Total   int             `json:"total"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}
