package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Date filters

	"ledger_system/internal/db"     // Store for reads
	"ledger_system/internal/domain" // Importing domain models
	"ledger_system/internal/ledger" // Transaction log
	"ledger_system/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID       uint            `json:"id"`       // User ID
	Username string          `json:"username"` // Username
	Role     string          `json:"role"`     // User role
	Account  *domain.Account `json:"account"`  // Associated account
}

// userPage is the cached shape of the admin user listing
type userPage struct {
	Users      []UserAdminResponse `json:"users"`       // List of users
	Page       int                 `json:"page"`        // Current page
	PageSize   int                 `json:"page_size"`   // Page size
	Total      int64               `json:"total"`       // Total number of users
	TotalPages int                 `json:"total_pages"` // Total pages
}

// transactionPage is the cached shape of the admin transaction listing
type transactionPage struct {
	Transactions []domain.Transaction `json:"transactions"` // List of transactions
	Page         int                  `json:"page"`         // Current page
	PageSize     int                  `json:"page_size"`    // Page size
	Total        int64                `json:"total"`        // Total number of transactions
	TotalPages   int                  `json:"total_pages"`  // Total pages
}

// ListUsersHandler returns all users with their account info
func ListUsersHandler(store *db.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := parsePagination(c)
		cacheKey := "admin:users:page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		var cached userPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"users":       cached.Users,      // List of users
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total number of users
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Indicate response is from cache
			})
			return
		}
		read := store.DB(ctx)
		var total int64 // Total user count
		if err := read.Model(&domain.User{}).Count(&total).Error; err != nil {
			respondError(c, err, logrus.Fields{}, "Failed to count users")
			return
		}
		var users []domain.User
		// Preload Account relation, apply offset and limit for pagination
		if err := read.Preload("Account").Order("id").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
			respondError(c, err, logrus.Fields{}, "Failed to fetch users")
			return
		}
		resp := userPage{
			Users:      make([]UserAdminResponse, len(users)),
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages(total, pageSize),
		}
		for i, u := range users {
			resp.Users[i] = UserAdminResponse{ID: u.ID, Username: u.Username, Role: u.Role, Account: u.Account}
		}
		if err := utils.SetCache(ctx, rdb, cacheKey, resp, utils.CacheTTL); err != nil {
			logrus.WithError(err).Warn("Failed to cache user listing")
		}
		c.JSON(http.StatusOK, gin.H{
			"users":       resp.Users,
			"page":        resp.Page,
			"page_size":   resp.PageSize,
			"total":       resp.Total,
			"total_pages": resp.TotalPages,
			"cached":      false, // Indicate response is not from cache
		})
	}
}

// ListTransactionsHandler returns all transactions, with optional filtering by owner, type, or date
func ListTransactionsHandler(store *db.Store, log *ledger.Log, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := parsePagination(c)
		f := ledger.Filter{Offset: (page - 1) * pageSize, Limit: pageSize}
		if v := c.Query("owner_id"); v != "" {
			id, err := strconv.ParseUint(v, 10, 0)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner_id"})
				return
			}
			f.OwnerID = uint(id)
		}
		if v := c.Query("type"); v != "" {
			f.Type = domain.TransactionType(v)
			if !f.Type.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid type"})
				return
			}
		}
		var err error
		if f.From, err = parseTime(c.Query("from")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from, expected RFC3339"})
			return
		}
		if f.To, err = parseTime(c.Query("to")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to, expected RFC3339"})
			return
		}
		// Build cache key from all query params
		var keyParts []string
		for _, k := range []string{"owner_id", "type", "from", "to"} {
			keyParts = append(keyParts, k+"="+c.Query(k))
		}
		keyParts = append(keyParts, "page="+strconv.Itoa(page), "size="+strconv.Itoa(pageSize))
		cacheKey := "admin:txs:" + strings.Join(keyParts, ":")
		var cached transactionPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions, // List of transactions
				"page":         cached.Page,         // Current page
				"page_size":    cached.PageSize,     // Page size
				"total":        cached.Total,        // Total number of transactions
				"total_pages":  cached.TotalPages,   // Total pages
				"cached":       true,                // Indicate response is from cache
			})
			return
		}
		recs, total, err := log.List(ctx, store.DB(ctx), f)
		if err != nil {
			respondError(c, err, logrus.Fields{"filter": cacheKey}, "Failed to list transactions")
			return
		}
		if recs == nil {
			recs = []domain.Transaction{}
		}
		resp := transactionPage{
			Transactions: recs,
			Page:         page,
			PageSize:     pageSize,
			Total:        total,
			TotalPages:   totalPages(total, pageSize),
		}
		if err := utils.SetCache(ctx, rdb, cacheKey, resp, utils.CacheTTL); err != nil {
			logrus.WithError(err).Warn("Failed to cache transaction listing")
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": resp.Transactions,
			"page":         resp.Page,
			"page_size":    resp.PageSize,
			"total":        resp.Total,
			"total_pages":  resp.TotalPages,
			"cached":       false, // Indicate response is not from cache
		})
	}
}

// parseTime parses an optional RFC3339 query value
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// totalPages rounds total/pageSize up
func totalPages(total int64, pageSize int) int {
	return (int(total) + pageSize - 1) / pageSize
}
