package main

import (
	"flag"
	"log"
	"os"

	v1 "taskops/api/v1"
	"taskops/internal/auth"
	"taskops/internal/cache"
	"taskops/internal/config"
	"taskops/internal/db"
	"taskops/internal/lifecycle"
	"taskops/internal/notifier"
	"taskops/internal/sweeper"
	"taskops/internal/taskerr"
	"taskops/internal/taskrouter"
	"taskops/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	iniPath := flag.String("config", "", "path to INI config file (env vars take precedence)")
	flag.Parse()

	// 1. Load configuration
	var cfg *config.Config
	var err error
	if *iniPath != "" {
		cfg, err = config.LoadFromINI(*iniPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
		os.Exit(1)
	}
	log.Println("✓ Configuration loaded")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
			os.Exit(1)
		}
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
		os.Exit(1)
	}
	defer cache.Close()

	// 4. Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)

	// 5. Initialize WebSocket server
	if err := ws.InitServer(); err != nil {
		log.Fatalf("Failed to initialize WebSocket server: %v", err)
		os.Exit(1)
	}

	logger := logrus.NewEntry(logrus.StandardLogger())

	// 6. Build shared services
	store := taskerr.NewStore(db.GetDB(), cache.Client)

	var notifyClient *notifier.Client
	if cfg.Notifier.Enabled {
		notifyClient = notifier.NewClient(&notifier.Config{
			URL:        cfg.Notifier.URL,
			Topic:      cfg.Notifier.Topic,
			TimeoutSec: cfg.Notifier.TimeoutSec,
			Logger:     logger,
		})
	}

	lifecycleService := lifecycle.NewService(&lifecycle.Config{
		DB:           db.GetDB(),
		Store:        store,
		Notifier:     notifyClient,
		Logger:       logger,
		StalenessSec: cfg.Sweeper.StalenessSec,
	})

	queueRouter := taskrouter.NewRouter(taskrouter.Config{
		Apps:         cfg.Router.Apps,
		DefaultQueue: cfg.Router.DefaultQueue,
	})

	// 7. Start background workers
	if cfg.Sweeper.Enabled {
		sweepWorker := sweeper.NewWorker(&sweeper.Config{
			DB:           db.GetDB(),
			Store:        store,
			Logger:       logger,
			IntervalSec:  cfg.Sweeper.IntervalSec,
			StalenessSec: cfg.Sweeper.StalenessSec,
		})
		sweepWorker.Start()
		defer sweepWorker.Stop()
	} else {
		log.Println("[Sweeper] Disabled, not starting")
	}

	// 8. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// Setup API v1 routes
	v1.SetupRouter(r, cfg, &v1.Deps{
		DB:        db.GetDB(),
		Store:     store,
		Lifecycle: lifecycleService,
		Router:    queueRouter,
	})

	// Mount the Socket.IO endpoint with JWT handshake validation
	wsHandler := ws.WrapWithAuth(ws.Server)
	r.GET("/socket.io/*any", gin.WrapH(wsHandler))
	r.POST("/socket.io/*any", gin.WrapH(wsHandler))

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)

	// Start server
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
