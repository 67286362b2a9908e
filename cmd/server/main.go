package main

import (
	"flag"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dialwise/dialwise/cmd/bootstrap"
	handlers "github.com/dialwise/dialwise/internal/handler"
	"github.com/dialwise/dialwise/internal/task"
	"github.com/dialwise/dialwise/pkg/cache"
	"github.com/dialwise/dialwise/pkg/config"
	"github.com/dialwise/dialwise/pkg/logger"
	"github.com/dialwise/dialwise/pkg/metrics"
	"github.com/dialwise/dialwise/pkg/middleware"
)

type DialwiseApp struct {
	db       *gorm.DB
	handlers *handlers.Handlers
}

func NewDialwiseApp(db *gorm.DB) *DialwiseApp {
	return &DialwiseApp{
		db:       db,
		handlers: handlers.NewHandlers(db),
	}
}

func (app *DialwiseApp) RegisterRoutes(r *gin.Engine) {
	app.handlers.Register(r)
}

func main() {
	mode := flag.String("mode", "", "running environment (development, test, production)")
	flag.Parse()

	if *mode != "" {
		os.Setenv("MODE", *mode)
	}

	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}

	if err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Mode); err != nil {
		panic(err)
	}

	db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
		AutoMigrate: true,
		Seed:        config.GlobalConfig.Mode != "production",
	})
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}

	addr := config.GlobalConfig.Addr
	logger.Info("checked config",
		zap.String("addr", addr),
		zap.String("db-driver", config.GlobalConfig.DBDriver),
		zap.String("mode", config.GlobalConfig.Mode))

	cache.Init(config.GlobalConfig.AnalyticsCacheTTL)

	app := NewDialwiseApp(db)

	// background jobs: timeout reclamation and wallboard health snapshots
	task.StartStuckCallSweeper(db)
	go task.StartHealthSnapshots(db)

	if config.GlobalConfig.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.Lg))
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	if config.GlobalConfig.MetricsEnabled {
		r.Use(metrics.Middleware())
		r.GET("/metrics", metrics.Handler())
	}

	app.RegisterRoutes(r)

	logger.Info("server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Error("server exited", zap.Error(err))
	}
}
