package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	intdb "busreserve/internal/db"
	"busreserve/internal/domain"
	"busreserve/internal/domain/models"
)

type UserRepository struct {
	DB intdb.Querier
}

func (r UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.User{}, domain.NotFoundError{Resource: "user"}
	}

	var u models.User
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, email, phone, password_hash, role, status, created_at
		FROM users
		WHERE LOWER(email)=? LIMIT 1
	`, email).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, domain.NotFoundError{Resource: "user", Err: err}
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}
