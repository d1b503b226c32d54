package app

import (
	"context"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/controller"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/configwatcher"
	"learnhub_backend/pkg/database"
	"learnhub_backend/pkg/eventbus"
	"learnhub_backend/pkg/keylock"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/messaging"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/security"
	"learnhub_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Bus             eventbus.Bus
	services        *services
	publisher       *messaging.Publisher
	tracer          *sdktrace.TracerProvider
	scheduler       *cron.Cron
	configCallbacks []func(*config.Config)
}

type repositories struct {
	submission  *repository.SubmissionRepository
	progress    *repository.ProgressRepository
	enrollment  *repository.EnrollmentRepository
	certificate *repository.CertificateRepository
	catalog     *repository.CatalogRepository
	assessment  *repository.AssessmentRepository
}

type services struct {
	catalog     *service.CatalogService
	progress    *service.ProgressService
	cascade     *service.CascadeService
	submission  *service.SubmissionService
	certificate *service.CertificateService
	reconcile   *service.ReconcileService
	notifier    *service.SwitchableNotifier
}

type controllers struct {
	submission *controller.SubmissionController
	progress   *controller.ProgressController
	enrollment *controller.EnrollmentController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		submission:  repository.NewSubmissionRepository(db),
		progress:    repository.NewProgressRepository(db),
		enrollment:  repository.NewEnrollmentRepository(db),
		certificate: repository.NewCertificateRepository(db),
		catalog:     repository.NewCatalogRepository(db),
		assessment:  repository.NewAssessmentRepository(db),
	}
}

func (a *App) newLocker(cfg *config.Config, rdb *redis.Client) keylock.Locker {
	if cfg.Engine.LockBackend == util.BackendRedis && rdb != nil {
		return keylock.NewRedisLocker(rdb, cfg.Engine.LockTTL, cfg.Engine.LockWait)
	}
	return keylock.NewMemoryLocker(cfg.Engine.LockWait)
}

func (a *App) newBus(cfg *config.Config, rdb *redis.Client) eventbus.Bus {
	if cfg.Engine.EventBackend == util.BackendRedis && rdb != nil {
		return eventbus.NewRedisStreamBus(rdb, cfg.Engine.EventWorkers, 10)
	}
	return eventbus.NewMemoryBus(cfg.Engine.EventWorkers, cfg.Engine.EventBuffer)
}

func (a *App) newNotifier(cfg *config.Config) (service.Notifier, error) {
	if cfg.Notifier.Backend != util.BackendAMQP {
		return service.LogNotifier{}, nil
	}
	publisher, err := messaging.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return nil, err
	}
	a.publisher = publisher
	return service.NewAMQPNotifier(publisher), nil
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	locker := a.newLocker(cfg, rdb)

	next, err := a.newNotifier(cfg)
	if err != nil {
		return nil, err
	}
	s.notifier = service.NewSwitchableNotifier(next, cfg.Notifier.Enabled)

	archive, err := service.NewCertificateArchive(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	s.catalog = service.NewCatalogService(repos.catalog, repos.assessment, rdb)
	s.cascade = service.NewCascadeService(repos.enrollment, s.catalog, locker, a.Bus)
	s.progress = service.NewProgressService(repos.progress, s.catalog, locker, s.cascade)
	s.submission = service.NewSubmissionService(repos.submission, repos.assessment, s.progress, locker, a.Bus)
	s.certificate = service.NewCertificateService(repos.certificate, repos.enrollment, archive)
	s.reconcile = service.NewReconcileService(repos.submission, repos.progress, repos.enrollment, s.progress, s.cascade, s.certificate)

	service.RegisterHandlers(a.Bus, s.notifier, s.certificate, cfg.Engine.CertificateRetry)
	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		submission: controller.NewSubmissionController(s.submission),
		progress:   controller.NewProgressController(s.progress),
		enrollment: controller.NewEnrollmentController(s.cascade, s.certificate),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// New 在已建立的数据库/redis 连接上装配引擎，redis 可以为 nil
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}
	app.Bus = app.newBus(cfg, rdb)

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		return nil, err
	}
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router
	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	app.RegisterConfigCallback(func(c *config.Config) {
		logger.SetLevel(c.Server.Mode)
	})
	app.RegisterConfigCallback(func(c *config.Config) {
		services.notifier.SetEnabled(c.Notifier.Enabled)
	})

	app.Bus.Start(context.Background())
	return app, nil
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis, &cfg.Engine)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	// 监控初始化
	monitoring.Init()

	app, err := New(cfg, db, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize engine", zap.Error(err))
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("learnhub-engine", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	return app
}

func (a *App) startBackgroundTasks(ctx context.Context) {
	scheduler, err := a.services.reconcile.Schedule(a.Config.Engine.ReconcileCron, a.Config.Engine.ReconcileWindow)
	if err != nil {
		logger.Log.Error("Failed to schedule reconciliation", zap.Error(err))
	} else {
		a.scheduler = scheduler
	}

	err = configwatcher.Watch(ctx, "configs", func(cfg *config.Config) {
		for _, cb := range a.configCallbacks {
			cb(cfg)
		}
	})
	if err != nil {
		logger.Log.Warn("Config hot reload disabled", zap.Error(err))
	}
}

// Reconcile 手动触发一次对账
func (a *App) Reconcile(ctx context.Context, since time.Time) (service.ReconcileReport, error) {
	return a.services.reconcile.Run(ctx, since)
}

// Shutdown 停止后台任务并排空事件队列
func (a *App) Shutdown(ctx context.Context) {
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
	}
	if err := a.Bus.Close(); err != nil {
		logger.Log.Error("Failed to close event bus", zap.Error(err))
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	a.startBackgroundTasks(bgCtx)

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Println("Server forced to shutdown:", err)
	}

	stopBackground()
	a.Shutdown(ctx)

	log.Println("Server exiting")
}
