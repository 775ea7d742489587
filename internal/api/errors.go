package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"ledger_system/internal/domain" // Ledger error taxonomy

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// errorStatus maps ledger errors onto HTTP statuses, first match wins
var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidTarget, http.StatusBadRequest},
	{domain.ErrAccountNotFound, http.StatusNotFound},
	{domain.ErrTransactionNotFound, http.StatusNotFound},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrInsufficientFundsForReversal, http.StatusBadRequest},
	{domain.ErrInsufficientFunds, http.StatusBadRequest},
	{domain.ErrUnreversible, http.StatusBadRequest},
	{domain.ErrUnsupportedReversalType, http.StatusBadRequest},
	{domain.ErrAlreadyReversed, http.StatusConflict},
	{domain.ErrDuplicateAccount, http.StatusConflict},
}

// statusFor returns the HTTP status of a ledger error, 0 when it is not a business error
func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return 0
}

// respondError writes a business error as-is; anything else is logged and hidden behind a 503
func respondError(c *gin.Context, err error, fields logrus.Fields, msg string) {
	if status := statusFor(err); status != 0 {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	fields["error"] = err.Error()
	logrus.WithFields(fields).Error(msg) // Storage and internal failures never reach the client
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ledger unavailable"})
}
