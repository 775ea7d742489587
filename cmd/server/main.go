package main

import (
	"context"                       // context package is needed for Redis operations
	"ledger_system/internal/api"    // Custom package for API handlers
	"ledger_system/internal/config" // Custom package for configuration
	"ledger_system/internal/db"     // Custom package for storage
	"ledger_system/internal/events" // Custom package for transaction events
	"ledger_system/internal/ledger" // Custom package for the ledger engine
	"ledger_system/internal/lock"   // Custom package for account locks

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{}) // Machine-readable logs in production
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Connect to the database and bring the schema up to date
	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("failed to migrate DB: %v", err)
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Account locks: in-process for a single replica, Redis for several
	var locker lock.Locker = lock.NewMutexLocker()
	if cfg.LockBackend == config.LockRedis {
		locker = lock.NewRedisLocker(redisClient, lock.DefaultRedisOptions())
	}

	// Transaction events go to Kafka when brokers are configured
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	defer publisher.Close()

	// Wire the ledger
	store := db.NewStore(gdb, cfg.DBMaxRetries)
	accounts := ledger.NewRegistry()
	txLog := ledger.NewLog(0)
	engine := ledger.NewEngine(store, accounts, txLog, locker, publisher)
	history := ledger.NewHistory(store, accounts, txLog)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := api.NewRouter(api.Deps{
		Store:     store,
		Accounts:  accounts,
		Log:       txLog,
		Engine:    engine,
		History:   history,
		Redis:     redisClient,
		JWTSecret: cfg.JWTSecret,
	})

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"port":   cfg.AppPort,
		"driver": cfg.DBDriver,
		"locks":  cfg.LockBackend,
		"kafka":  len(cfg.KafkaBrokers) > 0,
	}).Info("Server running")
	if err := r.Run(":" + cfg.AppPort); err != nil { // Start the server on port cfg.AppPort
		logrus.Fatalf("server stopped: %v", err)
	}
}
