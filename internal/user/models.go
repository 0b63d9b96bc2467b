package user

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         rbac.Role  `json:"role"`
	FirstName    string     `json:"firstName,omitempty"`
	LastName     string     `json:"lastName,omitempty"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	Institution  string     `json:"institution,omitempty"`
	FieldOfStudy string     `json:"fieldOfStudy,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type Store interface {
	// Create fails with a Conflict error when the email is taken.
	Create(ctx context.Context, u User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}
