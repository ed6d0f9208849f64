package handlers

import (
	"errors"
	"net/http"

	"busreserve/internal/http/middleware"
	"busreserve/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	Auth services.AuthService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/login
func (h AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !BindJSONOrError(c, &req) {
		return
	}

	svc := h.Auth
	svc.RequestID = middleware.GetRequestID(c)
	token, user, err := svc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if errors.Is(err, services.ErrInvalidCredentials) {
		RespondError(c, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user.ToPublic(),
	})
}
