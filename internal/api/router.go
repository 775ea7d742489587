package api

import (
	"context" // Base context for long-lived handles

	"ledger_system/internal/db"         // Transactional store
	"ledger_system/internal/ledger"     // Ledger components
	"ledger_system/internal/middleware" // Auth middleware

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// Deps are the components the HTTP layer drives
type Deps struct {
	Store     *db.Store        // Transactional store
	Accounts  *ledger.Registry // Account registry
	Log       *ledger.Log      // Transaction log
	Engine    *ledger.Engine   // Deposit, transfer, reverse
	History   *ledger.History  // Read-only history
	Redis     *redis.Client    // Cache, nil disables caching
	JWTSecret string           // JWT signing key
}

// NewRouter registers every route on a fresh gin engine
func NewRouter(d Deps) *gin.Engine {
	r := gin.Default() // Gin router instance

	// Auth routes
	r.POST("/auth/register", RegisterHandler(d.Store, d.Accounts))                     // Registration endpoint
	r.POST("/auth/login", LoginHandler(d.Store.DB(context.Background()), d.JWTSecret)) // Login endpoint
	auth := middleware.JWTAuthMiddleware(d.JWTSecret)                                  // Shared JWT check
	r.GET("/account", auth, GetAccountHandler(d.Store, d.Accounts, d.Redis))           // Account endpoint

	// Ledger routes (protected by JWT)
	txGroup := r.Group("/transactions", auth)
	txGroup.POST("/deposit", DepositHandler(d.Engine, d.Redis))   // Deposit endpoint
	txGroup.POST("/transfer", TransferHandler(d.Engine, d.Redis)) // Transfer endpoint
	txGroup.POST("/reverse", ReverseHandler(d.Engine, d.Redis))   // Reverse endpoint
	txGroup.GET("/history", HistoryHandler(d.History, d.Redis))   // Transaction history endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin", auth, middleware.AdminOnlyMiddleware(d.Store.DB(context.Background())))
	adminGroup.GET("/users", ListUsersHandler(d.Store, d.Redis))                      // List users endpoint
	adminGroup.GET("/transactions", ListTransactionsHandler(d.Store, d.Log, d.Redis)) // List transactions endpoint

	return r
}
