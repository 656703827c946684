// Package store persists courses and accounts. Every course read and write
// is scoped by the owning user id.
package store

import (
	"context"
	"errors"

	"stepwise/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("version conflict")
	ErrEmailTaken = errors.New("email already exists")
)

// CourseStore is the per-user course collection.
type CourseStore interface {
	// Create stores c and returns the assigned id. The stored version is 1.
	Create(ctx context.Context, c models.Course) (string, error)
	// ListForUser returns the user's courses, newest first.
	ListForUser(ctx context.Context, userID string) ([]models.Course, error)
	Get(ctx context.Context, userID, id string) (models.Course, error)
	// UpdatePartial merges the provided fields. Steps replaces the whole
	// array. A set ExpectedVersion must match or ErrConflict is returned.
	UpdatePartial(ctx context.Context, userID, id string, u models.CourseUpdate) error
	Delete(ctx context.Context, userID, id string) error
}

// UserStore holds registered accounts.
type UserStore interface {
	// CreateUser assigns an id, stores u and returns it.
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
}

// Store bundles both collections behind one backend.
type Store interface {
	CourseStore
	UserStore
	Close() error
}
