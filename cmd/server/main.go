package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HassanDev-git/HK.Chat/internal/api/handlers"
	"github.com/HassanDev-git/HK.Chat/internal/api/middleware"
	"github.com/HassanDev-git/HK.Chat/internal/config"
	"github.com/HassanDev-git/HK.Chat/internal/crypto"
	"github.com/HassanDev-git/HK.Chat/internal/database"
	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/internal/metrics"
	"github.com/HassanDev-git/HK.Chat/internal/presence"
	"github.com/HassanDev-git/HK.Chat/internal/store"
	"github.com/HassanDev-git/HK.Chat/internal/websocket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	fs := flag.NewFlagSet("hkchat", flag.ExitOnError)
	envFile := fs.String("env", ".env", "dotenv file to load before reading the environment")
	addr := fs.String("addr", "", "listen address (overrides PORT)")
	dbPath := fs.String("db", "", "SQLite database path (overrides DATABASE_PATH)")
	debug := fs.Bool("debug", false, "enable debug logging and gin debug mode")
	_ = fs.Parse(os.Args[1:])

	overrides := config.Overrides{EnvFile: *envFile}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			overrides.Addr = addr
		case "db":
			overrides.DatabasePath = dbPath
		case "debug":
			overrides.Debug = debug
		}
	})

	// Load configuration
	cfg, err := config.Load(overrides)
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	logger.SetFormat(logger.ParseFormat(cfg.LogFormat))
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Ignoring LOG_LEVEL: %v", err)
		} else {
			logger.SetLevel(level)
		}
	} else if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}
	defer logger.Sync()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Open database
	logger.Infof("Opening database: %s", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	queries := store.New(db.DB)
	if n, err := queries.ResetOnline(context.Background()); err != nil {
		logger.Warnf("Failed to reset online flags: %v", err)
	} else if n > 0 {
		logger.Infof("Cleared %d stale online flags", n)
	}

	jwtManager, err := crypto.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		logger.Errorf("Failed to create JWT manager: %v", err)
		os.Exit(1)
	}

	m := metrics.New()

	persisters := []presence.Persister{queries}
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := presence.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warnf("Redis presence mirror disabled: %v", err)
		} else {
			mirror := presence.NewRedisMirror(client)
			if err := mirror.Reset(ctx); err != nil {
				logger.Warnf("Failed to reset Redis online set: %v", err)
			}
			persisters = append(persisters, mirror)
			defer client.Close()
			logger.Infof("Redis presence mirror enabled")
		}
		cancel()
	}

	relay := websocket.NewRelay(websocket.RelayOptions{
		Users:      queries,
		Chats:      queries,
		Messages:   queries,
		Persisters: persisters,
		Metrics:    m,
	})

	logger.Infof("Initializing Socket.IO server...")
	socketIOServer := websocket.NewSocketIOServer(cfg, jwtManager, relay, m)
	defer socketIOServer.Close()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(middleware.LoggingMiddleware())

	healthHandler := handlers.NewHealthHandler(db.DB, relay.Hub().Count)
	presenceHandler := handlers.NewPresenceHandler(relay.Presence(), queries)

	api := router.Group("/api")
	{
		api.GET("/health", healthHandler.Get)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(jwtManager))
	{
		protected.GET("/presence/:userId", presenceHandler.Get)
	}

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Socket.IO authenticates in its own handshake.
	router.Any(websocket.SocketIOPath, socketIOServer.HandleSocketIO())
	router.Any(websocket.SocketIOPath+"/*any", socketIOServer.HandleSocketIO())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("HK Chat relay listening on %s", cfg.Addr)
		logger.Infof("Database: %s", cfg.DatabasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
