package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/damoang/angple-chat/internal/config"
	"github.com/damoang/angple-chat/internal/database"
	"github.com/damoang/angple-chat/internal/handler"
	"github.com/damoang/angple-chat/internal/messaging"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/migration"
	"github.com/damoang/angple-chat/internal/presence"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/internal/retention"
	"github.com/damoang/angple-chat/internal/routes"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/internal/ws"
	pkgcache "github.com/damoang/angple-chat/pkg/cache"
	"github.com/damoang/angple-chat/pkg/jwt"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	pkgredis "github.com/damoang/angple-chat/pkg/redis"
	pkgstorage "github.com/damoang/angple-chat/pkg/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"
)

// @title           Angple Chat API
// @version         1.0
// @description     One-to-one chat, presence and status posts
//
// @host            localhost:8082
// @BasePath        /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath(env string) string {
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	cfg, err := config.Load(getConfigPath(env))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)
	gin.SetMode(cfg.Server.Mode)

	dbLogLevel := gormlogger.Warn
	if cfg.Server.Mode == gin.DebugMode {
		dbLogLevel = gormlogger.Info
	}
	db, err := database.Open(cfg.Database, dbLogLevel)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	pkglogger.Info("Connected to %s", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it the rate limiter is off and profiles are read from the DB
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, pkgredis.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			pkglogger.Warn("Failed to connect to Redis: %v (continuing without Redis)", err)
			redisClient = nil
		} else {
			pkglogger.Info("Connected to Redis")
			defer redisClient.Close()
		}
	}

	var media service.MediaStore
	if cfg.Storage.Enabled {
		s3Client, s3Err := pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			CDNURL:          cfg.Storage.CDNURL,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if s3Err != nil {
			pkglogger.Warn("S3 storage init failed: %v (media uploads disabled)", s3Err)
		} else {
			media = s3Client
		}
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	statusRepo := repository.NewStatusRepository(db)

	// Presence and live channel
	tracker := presence.New(userRepo, presence.Options{TypingTimeout: cfg.Chat.TypingTimeout})

	// Services
	userService := service.NewUserService(userRepo, tracker, pkgcache.NewService(redisClient))
	chatService := service.NewChatService(convRepo, msgRepo, userService, tracker, media)
	statusService := service.NewStatusService(statusRepo, userService, media, cfg.Status.TTL)

	hub := ws.NewHub(messaging.NewHandler(tracker, convRepo, msgRepo, userService), ws.Options{
		MaxMessageSize:  cfg.Chat.MaxMessageSize,
		EventsPerSecond: cfg.Chat.EventsPerSecond,
		EventBurst:      cfg.Chat.EventBurst,
		SendBuffer:      cfg.Chat.SendBuffer,
	})

	sweeper, err := retention.NewSweeper(statusService, cfg.Status.SweepCron)
	if err != nil {
		log.Fatalf("Invalid status sweep schedule: %v", err)
	}
	sweeper.Start(ctx)

	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn, cfg.JWT.RefreshIn)

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     splitOrigins(cfg.CORS.AllowOrigins),
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining"},
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "angple-chat",
			"connections": hub.Count(),
			"online":      tracker.OnlineCount(),
			"time":        time.Now().Unix(),
		})
	})

	routes.Setup(router, routes.Handlers{
		Chat:   handler.NewChatHandler(chatService, cfg.Storage.MaxUploadMB),
		User:   handler.NewUserHandler(userService),
		Status: handler.NewStatusHandler(statusService, cfg.Storage.MaxUploadMB),
		WS:     handler.NewWSHandler(hub, cfg.CORS.AllowOrigins),
	}, jwtManager, redisClient)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "not found", "code": "NOT_FOUND"})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		pkglogger.Info("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	pkglogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		pkglogger.Error("HTTP shutdown: %v", err)
	}
	// hijacked websocket connections are not covered by srv.Shutdown
	hub.Shutdown(shutdownCtx)
	tracker.Close()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func splitOrigins(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = []string{"http://localhost:3000"}
	}
	return out
}
