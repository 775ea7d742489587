package api

import (
	"net/http" // HTTP status codes

	"ledger_system/internal/ledger"     // Ledger engine and history
	"ledger_system/internal/middleware" // Authenticated owner lookup
	"ledger_system/internal/utils"      // Cache helpers

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Decimal amounts
	"github.com/sirupsen/logrus"    // Logging library
)

// DepositRequest is the body of a deposit
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"` // Positive, at most two decimal places
}

// TransferRequest is the body of a transfer
type TransferRequest struct {
	TargetUserID uint            `json:"target_user_id" binding:"required"` // Recipient owner
	Amount       decimal.Decimal `json:"amount"`                            // Positive, at most two decimal places
}

// ReverseRequest is the body of a reversal
type ReverseRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"` // Transfer to undo
}

// DepositHandler credits the caller's account
func DepositHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := middleware.OwnerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req DepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		res, err := engine.Deposit(ctx, ownerID, req.Amount)
		if err != nil {
			respondError(c, err, logrus.Fields{"owner_id": ownerID, "amount": req.Amount.String()}, "Deposit failed")
			return
		}
		invalidate(c, rdb, ownerID)
		logrus.WithFields(logrus.Fields{
			"owner_id":       ownerID,
			"transaction_id": res.Transaction.ID,
			"amount":         res.Transaction.Amount.String(),
		}).Info("Deposit completed")
		c.JSON(http.StatusCreated, res)
	}
}

// TransferHandler moves funds from the caller to another owner
func TransferHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := middleware.OwnerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		res, err := engine.Transfer(ctx, ownerID, req.TargetUserID, req.Amount)
		if err != nil {
			respondError(c, err, logrus.Fields{
				"sender_id":    ownerID,
				"recipient_id": req.TargetUserID,
				"amount":       req.Amount.String(),
			}, "Transfer failed")
			return
		}
		invalidate(c, rdb, ownerID, req.TargetUserID)
		logrus.WithFields(logrus.Fields{
			"sender_id":    ownerID,
			"recipient_id": req.TargetUserID,
			"out_id":       res.Transactions.Out.ID,
			"in_id":        res.Transactions.In.ID,
			"amount":       res.Transactions.Out.Amount.String(),
		}).Info("Transfer completed")
		c.JSON(http.StatusCreated, res)
	}
}

// ReverseHandler undoes one of the caller's outgoing transfers
func ReverseHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := middleware.OwnerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req ReverseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		res, err := engine.Reverse(ctx, ownerID, req.TransactionID)
		if err != nil {
			respondError(c, err, logrus.Fields{"owner_id": ownerID, "transaction_id": req.TransactionID}, "Reverse failed")
			return
		}
		invalidate(c, rdb, ownerID, res.RecipientOwnerID)
		logrus.WithFields(logrus.Fields{
			"owner_id":       ownerID,
			"transaction_id": req.TransactionID,
			"reverse_id":     res.ReverseTransaction.ID,
		}).Info("Transfer reversed")
		c.JSON(http.StatusCreated, res)
	}
}

// HistoryHandler lists the caller's transactions, newest first. With all=true
// the full history is returned without paging.
func HistoryHandler(history *ledger.History, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := middleware.OwnerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := c.Request.Context()
		if c.Query("all") == "true" {
			recs, err := history.All(ctx, ownerID)
			if err != nil {
				respondError(c, err, logrus.Fields{"owner_id": ownerID}, "History failed")
				return
			}
			c.JSON(http.StatusOK, gin.H{"transactions": recs, "total": len(recs)})
			return
		}
		page, pageSize := parsePagination(c)
		cacheKey := utils.HistoryCacheKey(ownerID, page, pageSize)
		var cached ledger.HistoryPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions, // Page of transactions
				"page":         cached.Page,         // Current page
				"page_size":    cached.PageSize,     // Page size
				"total":        cached.Total,        // Total number of transactions
				"total_pages":  cached.TotalPages,   // Total pages
				"cached":       true,                // Indicate response is from cache
			})
			return
		}
		res, err := history.Page(ctx, ownerID, page, pageSize)
		if err != nil {
			respondError(c, err, logrus.Fields{"owner_id": ownerID}, "History failed")
			return
		}
		if err := utils.SetCache(ctx, rdb, cacheKey, res, utils.CacheTTL); err != nil {
			logrus.WithError(err).Warn("Failed to cache history page")
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": res.Transactions,
			"page":         res.Page,
			"page_size":    res.PageSize,
			"total":        res.Total,
			"total_pages":  res.TotalPages,
			"cached":       false, // Indicate response is not from cache
		})
	}
}

// invalidate drops cached reads of owners whose balance or history changed
func invalidate(c *gin.Context, rdb *redis.Client, ownerIDs ...uint) {
	if err := utils.InvalidateOwners(c.Request.Context(), rdb, ownerIDs...); err != nil {
		logrus.WithError(err).WithField("owners", ownerIDs).Warn("Failed to invalidate cache")
	}
}
