package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/giftpoints/api/rest"
	"github.com/kasuganosora/giftpoints/audit"
	"github.com/kasuganosora/giftpoints/cache"
	"github.com/kasuganosora/giftpoints/config"
	dbadapter "github.com/kasuganosora/giftpoints/db"
	"github.com/kasuganosora/giftpoints/gift"
	"github.com/kasuganosora/giftpoints/locks"
	"github.com/kasuganosora/giftpoints/mailbox"
	mw "github.com/kasuganosora/giftpoints/middleware"
	"github.com/kasuganosora/giftpoints/scheduler"
	"github.com/kasuganosora/giftpoints/session"
	"github.com/kasuganosora/giftpoints/storage"
	"github.com/kasuganosora/giftpoints/txn"
	"go.uber.org/zap"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	// The engine is unusable with no backend at all.
	if !cfg.Database.Local.Enabled && !cfg.Database.Remote.Enabled {
		logger.Warn("no backend enabled; forcing local on")
		cfg.Database.Local.Enabled = true
	}

	// ---- Storage backends ----
	execs := make(map[string]*txn.Executor)
	openBackend := func(name string, bc config.BackendConfig) *storage.GormProvider {
		if !bc.Enabled {
			return nil
		}
		gdb, err := dbadapter.Open(bc)
		if err != nil {
			// The local backend is the anchor; the remote one is a
			// best-effort mirror and may come and go.
			if name == "local" {
				log.Fatalf("db %s: %v", name, err)
			}
			logger.Warn("backend unavailable", zap.String("backend", name), zap.Error(err))
			return nil
		}
		exec := txn.NewExecutor(gdb, locks.NewRegistry(), logger.With(zap.String("backend", name)))
		execs[name] = exec
		return storage.NewGormProvider(name, exec, cfg.Points.BackupDir, logger)
	}

	localProv := openBackend("local", cfg.Database.Local)
	remoteProv := openBackend("remote", cfg.Database.Remote)

	var local, remote storage.Provider
	if localProv != nil {
		local = localProv
	}
	if remoteProv != nil {
		remote = remoteProv
	}
	store, err := storage.NewOrchestrator(local, remote, cfg.Sync, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if !store.Initialize() {
		log.Fatalf("storage: no backend came up")
	}
	defer store.Close()
	logger.Info("storage initialized", zap.String("primary", store.Primary()))

	// ---- Audit ----
	if localProv == nil {
		log.Fatalf("storage: local backend is required for audit and mailbox")
	}
	auditSvc := audit.New(localProv.Executor().DB(), logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache ----
	c, err := cache.New(cache.Config{
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		GCInterval:    cfg.Cache.GCInterval,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	logger.Info("cache initialized")

	// ---- Gift exchange ----
	box := mailbox.NewStore(localProv.Executor(), logger)
	sessions := session.NewStore(cfg.Points.SessionTTL)
	giftSvc := gift.NewService(store, box, sessions, cfg.Points, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	if local != nil && remote != nil && cfg.Sync.Interval > 0 {
		sched.AddTicker("sync", cfg.Sync.Interval, func() {
			report := store.SyncNow(context.Background())
			if report.Ran {
				logger.Info("sync pass finished",
					zap.Int("pairs", report.Pairs),
					zap.Int("applied", report.Applied),
					zap.Duration("duration", report.Duration))
			}
		})
	}
	if cfg.Sync.HealthInterval > 0 {
		sched.AddTicker("health", cfg.Sync.HealthInterval, func() {
			for name, exec := range execs {
				h := exec.HealthCheck(context.Background())
				if !h.Connected || !h.LocksHealthy {
					logger.Warn("backend unhealthy",
						zap.String("backend", name),
						zap.Bool("connected", h.Connected),
						zap.Bool("locks_healthy", h.LocksHealthy))
				}
			}
		})
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	authH := apirest.NewAuthHandler(localProv.Executor().DB(), c, cfg.Security)
	pointsH := apirest.NewPointsHandler(store)
	giftH := apirest.NewGiftHandler(giftSvc, localProv.Executor().DB(), c, cfg.Points.SessionTTL, logger)
	mailH := apirest.NewMailboxHandler(box, giftSvc, localProv.Executor().DB(), logger)
	rankH := apirest.NewRankingHandler(store, c, cfg.Cache.RankingTTL, logger)
	adminH := apirest.NewAdminHandler(store, execs, sched, auditSvc, logger)

	if cfg.Cache.RankingTTL > 0 {
		sched.AddTicker("ranking_refresh", cfg.Cache.RankingTTL, func() {
			rankH.RefreshCache(context.Background())
		})
	}

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		pointsG := api.Group("/points")
		pointsG.Use(mw.Auth(cfg.Security, c))
		pointsG.GET("/balance", pointsH.GetBalance)
		pointsG.POST("/spend", pointsH.Spend)
		pointsG.GET("/friends", pointsH.ListFriends)
		pointsG.GET("/friendship/:id", pointsH.GetFriendship)
		pointsG.GET("/history", pointsH.History)

		giftsG := api.Group("/gifts")
		giftsG.Use(mw.Auth(cfg.Security, c))
		giftsG.GET("/catalog", giftH.Catalog)
		giftsG.POST("/target", giftH.SelectTarget)
		giftsG.POST("/confirm", giftH.Confirm)
		giftsG.POST("/send", giftH.Send)

		mailG := api.Group("/mailbox")
		mailG.Use(mw.Auth(cfg.Security, c))
		mailG.GET("", mailH.List)
		mailG.GET("/summary", mailH.Summary)
		mailG.GET("/stats", mailH.Stats)
		mailG.POST("/claim/:id", mailH.Claim)

		rankG := api.Group("/ranking")
		rankG.GET("/pairs", rankH.TopPairs)

		adminG := api.Group("/admin")
		adminG.Use(mw.AdminAuth(cfg.Server.AdminKey), mw.IPWhitelist(cfg.Security.AdminIPs))
		adminG.GET("/health", adminH.Health)
		adminG.GET("/players/:id", adminH.PlayerOverview)
		adminG.POST("/points/personal", adminH.SetPersonalPoints)
		adminG.POST("/points/friendship", adminH.SetFriendshipPoints)
		adminG.POST("/boost", adminH.SetBoost)
		adminG.POST("/sync", adminH.TriggerSync)
		adminG.POST("/backup", adminH.Backup)
		adminG.POST("/ranking/refresh", rankH.Refresh)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
