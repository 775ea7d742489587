package api

import (
	"strconv" // String conversion

	"ledger_system/internal/ledger" // Page size limits

	"github.com/gin-gonic/gin" // Gin web framework
)

// parsePagination reads page and page_size, falling back to defaults on bad input
func parsePagination(c *gin.Context) (page, pageSize int) {
	page, pageSize = 1, ledger.DefaultPageSize
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= ledger.MaxPageSize {
			pageSize = v // Set page size if valid
		}
	}
	return page, pageSize
}
