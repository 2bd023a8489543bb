package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/giftpoints/api/rest"
	"github.com/kasuganosora/giftpoints/audit"
	"github.com/kasuganosora/giftpoints/cache"
	"github.com/kasuganosora/giftpoints/config"
	"github.com/kasuganosora/giftpoints/gift"
	"github.com/kasuganosora/giftpoints/locks"
	"github.com/kasuganosora/giftpoints/mailbox"
	mw "github.com/kasuganosora/giftpoints/middleware"
	"github.com/kasuganosora/giftpoints/model"
	"github.com/kasuganosora/giftpoints/scheduler"
	"github.com/kasuganosora/giftpoints/session"
	"github.com/kasuganosora/giftpoints/storage"
	"github.com/kasuganosora/giftpoints/testutil"
	"github.com/kasuganosora/giftpoints/txn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "test-admin-key"

// testApp wires the full HTTP surface over an in-memory backend.
type testApp struct {
	r     *gin.Engine
	db    *gorm.DB
	store *storage.Orchestrator
	box   *mailbox.Store
	cache cache.Cache
	sec   config.SecurityConfig
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	exec := txn.NewExecutor(db, locks.NewRegistry(), logger)
	prov := storage.NewGormProvider("local", exec, t.TempDir(), logger)
	store, err := storage.NewOrchestrator(prov, nil, config.SyncConfig{}, logger)
	require.NoError(t, err)
	require.True(t, store.Initialize())
	t.Cleanup(store.Close)

	sec := config.SecurityConfig{
		JWTSecret: "test-secret",
		JWTTTL:    time.Hour,
	}
	points := config.PointsConfig{
		DailyGiftLimit:    20,
		ClaimSharePercent: 100,
		SessionTTL:        time.Minute,
	}

	box := mailbox.NewStore(exec, logger)
	sessions := session.NewStore(points.SessionTTL)
	svc := gift.NewService(store, box, sessions, points, logger)
	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(nil) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	authH := apirest.NewAuthHandler(db, c, sec)
	pointsH := apirest.NewPointsHandler(store)
	giftH := apirest.NewGiftHandler(svc, db, c, points.SessionTTL, logger)
	mailH := apirest.NewMailboxHandler(box, svc, db, logger)
	rankH := apirest.NewRankingHandler(store, c, time.Minute, logger)
	adminH := apirest.NewAdminHandler(store, map[string]*txn.Executor{"local": exec}, sched, auditSvc, logger)

	r := gin.New()
	api := r.Group("/api")

	authG := api.Group("/auth")
	authG.POST("/login", authH.Login)
	authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
	authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)

	pointsG := api.Group("/points")
	pointsG.Use(mw.Auth(sec, c))
	pointsG.GET("/balance", pointsH.GetBalance)
	pointsG.POST("/spend", pointsH.Spend)
	pointsG.GET("/friends", pointsH.ListFriends)
	pointsG.GET("/friendship/:id", pointsH.GetFriendship)
	pointsG.GET("/history", pointsH.History)

	giftsG := api.Group("/gifts")
	giftsG.Use(mw.Auth(sec, c))
	giftsG.GET("/catalog", giftH.Catalog)
	giftsG.POST("/target", giftH.SelectTarget)
	giftsG.POST("/confirm", giftH.Confirm)
	giftsG.POST("/send", giftH.Send)

	mailG := api.Group("/mailbox")
	mailG.Use(mw.Auth(sec, c))
	mailG.GET("", mailH.List)
	mailG.GET("/summary", mailH.Summary)
	mailG.GET("/stats", mailH.Stats)
	mailG.POST("/claim/:id", mailH.Claim)

	rankG := api.Group("/ranking")
	rankG.GET("/pairs", rankH.TopPairs)

	adminG := api.Group("/admin")
	adminG.Use(mw.AdminAuth(testAdminKey))
	adminG.GET("/health", adminH.Health)
	adminG.GET("/players/:id", adminH.PlayerOverview)
	adminG.POST("/points/personal", adminH.SetPersonalPoints)
	adminG.POST("/points/friendship", adminH.SetFriendshipPoints)
	adminG.POST("/boost", adminH.SetBoost)
	adminG.POST("/sync", adminH.TriggerSync)
	adminG.POST("/backup", adminH.Backup)
	adminG.POST("/ranking/refresh", rankH.Refresh)

	return &testApp{r: r, db: db, store: store, box: box, cache: c, sec: sec}
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPost, path, body, headers...)
}

func getJSON(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodGet, path, nil, headers...)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// login registers (or logs in) a player and returns the bearer header
// value plus the player id. Logging in also marks the player online, so
// gifts to them deliver synchronously.
func login(t *testing.T, app *testApp, name string) (string, int64) {
	t.Helper()
	w := postJSON(app.r, "/api/auth/login", map[string]string{
		"name":     name,
		"password": "pass1234",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)
	id, _ := resp["player_id"].(float64)
	require.NotZero(t, id)
	return "Bearer " + token, int64(id)
}

func bearer(token string) []string {
	return []string{"Authorization", token}
}

// registerOffline creates a player row without a login, so gifts to
// them queue into the mailbox. The password is the same one login()
// uses, so the player can log in later to claim.
func registerOffline(t *testing.T, app *testApp, name string) (string, int64) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pass1234"), bcrypt.MinCost)
	require.NoError(t, err)
	p := model.Player{Name: name, PasswordHash: string(hash), Status: 1}
	require.NoError(t, app.db.Create(&p).Error)
	return name, p.ID
}
