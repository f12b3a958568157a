package repository

import (
	"context"

	"github.com/hireloop/chat-relay/internal/database"
	"github.com/hireloop/chat-relay/internal/model"
)

// UserRepository is a read-only view of the ATS users table. The relay
// resolves sender identity at send time so display-name changes show up
// immediately; it never writes user records.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

type userRepo struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, display_name, role, created_at FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}
