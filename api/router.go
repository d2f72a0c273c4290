// Package api contains all endpoints available
package api

import (
	"fmt"
	"time"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	ginzap "github.com/gin-contrib/zap"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/cloudflare"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/db"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/middleware"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/separation"
	"github.com/chenyichao1993/ai-stem-splitter-sub000/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

var store = persist.NewMemoryStore(time.Minute)

type API struct {
	DB        *gorm.DB
	Store     *db.Store
	Router    *gin.Engine
	Blobs     service.BlobStore
	Separator *service.Separator
	Cleanup   *service.Cleanup
}

func NewRouter() (*API, error) {
	a := &API{}

	conn, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}
	a.DB = conn
	a.Store = db.NewStore(conn)

	makeLogger()

	r2, err := cloudflare.NewR2()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize R2 client, %w", err)
	}
	a.Blobs = r2

	a.Separator = service.NewSeparator(a.Store, r2, separation.New(), viper.GetInt("queue.workers"))
	a.Separator.Queue.StartWorkerPool()

	a.Cleanup = service.NewCleanup(a.Store, r2, viper.GetDuration("cleanup.interval"))

	a.setupRoutes()

	return a, nil
}

// setupRoutes builds the gin engine and registers every endpoint.
func (a *API) setupRoutes() {
	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{viper.GetString("cors.origin")},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD" || c.FullPath() == "/health"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	a.Router.MaxMultipartMemory = 5 << 20

	maxUploadSize := viper.GetInt64("upload.max_size")
	limiter := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             10,
	})

	// GET /health			-> Liveness probe, no side effects
	router.GET("/health", a.Health)

	main := router.Group("/api")
	{
		// POST /api/upload		-> Accepts an audio file and stores it
		main.POST("/upload", limiter, middleware.BodySizeLimiter(maxUploadSize+(1<<20)), a.Upload)

		// POST /api/process		-> Creates a separation job for an uploaded file
		main.POST("/process", limiter, a.ProcessStart)

		// GET /api/process/:jobId	-> Returns the status of a job
		main.GET("/process/:jobId", a.ProcessStatus)

		// GET /api/download/:jobId/:stemType -> Streams a separated stem
		main.GET("/download/:jobId/:stemType", a.Download)

		// GET /api/check-file/:fileId	-> Returns uploaded file metadata
		main.GET("/check-file/:fileId", cacheFor(30), a.CheckFile)
	}
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

func cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, time.Second*time.Duration(sec))
}
