package repository

import (
	"context"
	"database/sql"
	"time"

	"roast_monitor/internal/models"
)

// Authorization stores operator accounts.
type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// ActivityRepo is the append-only operational log of the roast monitor.
// Roast samples and events themselves are never persisted.
type ActivityRepo interface {
	Append(ctx context.Context, e models.ActivityEvent) error
	List(ctx context.Context, from, to time.Time, typ string, limit int) ([]models.ActivityEvent, error)
}

type Repository struct {
	ActivityRepo ActivityRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		ActivityRepo: NewActivitySQLite(db),
		Auth:         NewUserRepository(db),
	}
}
