package handlers

import (
	"errors"
	"net/http"

	"busreserve/internal/domain"
	"busreserve/internal/http/middleware"
	"busreserve/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
		Retryable: status == http.StatusServiceUnavailable,
	})
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	var conflict domain.ConflictError
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &conflict):
		var details any
		if len(conflict.Seats) > 0 {
			details = gin.H{"seats": conflict.Seats}
		}
		respondError(c, http.StatusConflict, "conflict", conflict.Error(), details)
	case domain.IsAuthorization(err):
		respondError(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	case domain.IsTransactionAbort(err):
		utils.LogError(middleware.GetRequestID(c), "http", "transaction_abort", err)
		respondError(c, http.StatusServiceUnavailable, "transaction_aborted", "the request could not be completed, please retry", nil)
	default:
		utils.LogError(middleware.GetRequestID(c), "http", "internal_error", err)
		respondError(c, http.StatusInternalServerError, "internal_error", "something went wrong", nil)
	}
}
