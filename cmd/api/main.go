// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/bookstore-api/internal/auth"
	"github.com/yourusername/bookstore-api/internal/books"
	"github.com/yourusername/bookstore-api/internal/config"
	"github.com/yourusername/bookstore-api/internal/jobs"
	"github.com/yourusername/bookstore-api/internal/middleware"
	"github.com/yourusername/bookstore-api/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// データベースを開く（スキーマは起動時に作成される）
	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	// Redis が設定されていれば大きなインポートを非同期で処理する
	var jobManager *jobs.Manager
	if cfg.QueueRedisURL != "" {
		jobManager, err = setupJobs(cfg, store)
		if err != nil {
			log.Printf("Async import disabled: %v", err)
		} else {
			jobManager.StartWorkers()
		}
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	setupRoutes(router, cfg, store, jobManager)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting API server on %s (mode: %s)", srv.Addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if jobManager != nil {
		if err := jobManager.Shutdown(shutdownCtx); err != nil {
			log.Printf("Job manager shutdown error: %v", err)
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーを返します。
func handleHealth(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			log.Printf("[%s] health check failed: %v", middleware.RequestIDFrom(c), err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"service": "bookstore-api",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "bookstore-api",
			"version": "0.1.0",
		})
	}
}

// setupRoutes はミドルウェアとルーティングの配線を行います。
// jobManager が nil の場合、インポートは常に同期で処理されます。
func setupRoutes(router *gin.Engine, cfg *config.Config, store *storage.Store, jobManager *jobs.Manager) {
	router.Use(middleware.RequestID())
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// CORSミドルウェアの設定（許可オリジンが空なら登録しない）
	if origins := splitOrigins(cfg.CORSAllowedOrigins); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		// クッキー認証のため資格情報付きリクエストを許可
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Type",
			"Accept",
			middleware.RequestIDHeader,
		}
		corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Retry-After"}
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", handleHealth(store))

	authManager := auth.NewManager(cfg, store)
	router.POST("/register", authManager.Register)
	router.POST("/login", authManager.Login)
	router.POST("/logout", authManager.Logout)

	importOpts := books.ImportOptions{
		AsyncThresholdRows: cfg.AsyncImportThresholdRows,
		MaxFileSize:        cfg.MaxImportSize,
	}
	var records jobRecords
	if jobManager != nil {
		importOpts.Scheduler = jobManager
		records = jobManager
	}

	protected := router.Group("")
	protected.Use(authManager.RequireLogin())
	{
		protected.GET("/books", books.ListHandler(store))
		protected.GET("/books/:id", books.GetHandler(store))
		protected.POST("/books", books.CreateHandler(store))
		protected.PUT("/books/:id", books.UpdateHandler(store))
		protected.DELETE("/books/:id", books.DeleteHandler(store))
		protected.POST("/books/import", books.ImportHandler(store, importOpts))
		protected.GET("/jobs/:id", jobStatusHandler(records))
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
