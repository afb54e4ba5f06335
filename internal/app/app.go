package app

import (
	"context"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/controller"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/database"
	"learnhub_backend/pkg/lock"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/security"
	"learnhub_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
	Policy *service.PolicyHolder

	repos    *repositories
	services *services

	mu              sync.Mutex
	configCallbacks []func(*config.Config)
	tracerProvider  *sdktrace.TracerProvider
	stopBackground  context.CancelFunc
}

type repositories struct {
	user        *repository.UserRepository
	course      *repository.CourseRepository
	progress    *repository.ProgressRepository
	exam        *repository.ExamRepository
	attempt     *repository.ExamAttemptRepository
	result      *repository.ExamResultRepository
	certificate *repository.CertificateRepository
}

type services struct {
	exam        *service.ExamService
	eligibility *service.EligibilityService
	attempt     *service.AttemptService
	certificate *service.CertificateService
	archive     *service.CertificateArchive
}

type controllers struct {
	exam        *controller.ExamController
	attempt     *controller.ExamAttemptController
	certificate *controller.CertificateController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ReloadConfig 配置文件变化后由 configwatcher 调用
func (a *App) ReloadConfig(cfg *config.Config) {
	a.mu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	var seq repository.Sequencer = repository.NewDBSequencer(db)
	if rdb != nil {
		seq = repository.NewRedisSequencer(rdb)
	}

	return &repositories{
		user:        repository.NewUserRepository(db, seq),
		course:      repository.NewCourseRepository(db),
		progress:    repository.NewProgressRepository(db),
		exam:        repository.NewExamRepository(db),
		attempt:     repository.NewExamAttemptRepository(db),
		result:      repository.NewExamResultRepository(db),
		certificate: repository.NewCertificateRepository(db),
	}
}

func (a *App) newLocker(rdb *redis.Client) lock.Locker {
	if rdb != nil {
		return lock.NewRedisLocker(rdb, a.Policy.Get().LockTTL)
	}
	return lock.NewMemoryLocker()
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}
	locker := a.newLocker(rdb)

	s.archive = service.NewCertificateArchive(service.NewStorageProvider(&cfg.Storage))
	s.exam = service.NewExamService(repos.exam, repos.attempt, repos.course)
	s.eligibility = service.NewEligibilityService(repos.exam, repos.attempt, repos.result, repos.certificate, repos.progress)
	s.certificate = service.NewCertificateService(db, repos.certificate, repos.course, repos.user, s.archive, locker, a.Policy)
	s.attempt = service.NewAttemptService(db, repos.exam, repos.attempt, repos.result, repos.certificate, s.certificate, locker, a.Policy)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		exam:        controller.NewExamController(s.exam),
		attempt:     controller.NewExamAttemptController(s.eligibility, s.attempt),
		certificate: controller.NewCertificateController(s.certificate),
		health:      controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.RequestID())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 定时把超时未交卷的尝试标记为过期
func (a *App) startBackgroundTasks(s *services) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopBackground = cancel

	go func() {
		interval := a.Policy.Get().SweepInterval
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.attempt.ExpireStale(ctx); err != nil {
					logger.Log.Error("expire stale attempts error", zap.Error(err))
				}
				// 配置热更新后调整巡检间隔
				if next := a.Policy.Get().SweepInterval; next != interval {
					interval = next
					ticker.Reset(interval)
				}
			}
		}
	}()
}

// newApp 组装依赖与路由，不启动后台任务；测试直接使用
func newApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Policy: service.NewPolicyHolder(service.PolicyFromConfig(cfg.Exam)),
	}

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		app.Policy.Set(service.PolicyFromConfig(newCfg.Exam))
		logger.Log.Info("Exam policy reloaded",
			zap.Bool("enforce_expiry", newCfg.Exam.EnforceExpiry),
			zap.Int("expiry_grace_seconds", newCfg.Exam.ExpiryGraceSeconds))
	})

	app.repos = app.initRepositories(db, rdb)
	app.services = app.initServices(app.repos, cfg, db, rdb)
	ctrls := app.initControllers(app.services, db, rdb)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, ctrls, app.repos, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}
	return app
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// 非 release 模式或显式指定时执行迁移
	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
	}

	// 监控初始化
	monitoring.Init()

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tp, err = tracing.InitTracer("learnhub-exam", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app := newApp(cfg, db, rdb)
	app.tracerProvider = tp
	app.startBackgroundTasks(app.services)
	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.stopBackground != nil {
		a.stopBackground()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
