package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
	"busreserve/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const DefaultTokenTTL = 24 * time.Hour

var ErrInvalidCredentials = errors.New("invalid email or password")

// UserFinder looks accounts up for login.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	Users     UserFinder
	Secret    []byte
	TokenTTL  time.Duration
	Audit     Auditor
	Now       func() time.Time
	RequestID string
}

func (s AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return utils.NowUTC()
}

// Login checks the password and issues an HS256 token.
func (s AuthService) Login(ctx context.Context, email, password, ip string) (string, models.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", models.User{}, domain.ValidationError{Msg: "email and password are required"}
	}

	u, err := s.Users.FindByEmail(ctx, email)
	if domain.IsNotFound(err) {
		return "", models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", models.User{}, domain.InternalError{Msg: "login failed", Err: err}
	}
	if u.Status != "" && u.Status != "active" {
		return "", models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(u.ID, u.Role)
	if err != nil {
		return "", models.User{}, domain.InternalError{Msg: "failed to issue token", Err: err}
	}

	if s.Audit != nil {
		uid := u.ID
		if err := s.Audit.Record(ctx, s.RequestID, models.AuditEntry{
			UserID:    &uid,
			Action:    models.AuditLogin,
			Details:   map[string]any{"email": u.Email},
			IP:        ip,
			CreatedAt: s.now(),
		}); err != nil {
			utils.LogError(s.RequestID, "audit", models.AuditLogin, err)
		}
	}
	return token, u, nil
}

func (s AuthService) IssueToken(userID int64, role string) (string, error) {
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.Secret)
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret []byte, raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, err
	}
	if claims.UserID <= 0 {
		return Claims{}, errors.New("token has no user")
	}
	return claims, nil
}
