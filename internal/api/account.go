package api

import (
	"net/http" // HTTP status codes

	"ledger_system/internal/db"         // Store for reads
	"ledger_system/internal/domain"     // Importing domain models
	"ledger_system/internal/ledger"     // Account registry
	"ledger_system/internal/middleware" // Authenticated owner lookup
	"ledger_system/internal/utils"      // Cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// GetAccountHandler returns the caller's account, served from cache when possible
func GetAccountHandler(store *db.Store, accounts *ledger.Registry, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := middleware.OwnerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := c.Request.Context()
		cacheKey := utils.AccountCacheKey(ownerID)
		var cached domain.Account
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"account": cached, "cached": true})
			return
		}
		account, err := accounts.GetByOwner(ctx, store.DB(ctx), ownerID)
		if err != nil {
			respondError(c, err, logrus.Fields{"owner_id": ownerID}, "Failed to fetch account")
			return
		}
		if err := utils.SetCache(ctx, rdb, cacheKey, account, utils.CacheTTL); err != nil {
			logrus.WithError(err).Warn("Failed to cache account")
		}
		c.JSON(http.StatusOK, gin.H{"account": account, "cached": false})
	}
}
