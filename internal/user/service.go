package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-exams/internal/errs"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

var errInvalidCredentials = errs.NewUnauthorized("invalid credentials")

type RegisterInput struct {
	Email        string
	Password     string
	Role         rbac.Role
	FirstName    string
	LastName     string
	DateOfBirth  *time.Time
	Gender       string
	Institution  string
	FieldOfStudy string
}

type Service struct {
	store      Store
	bcryptCost int
	now        func() time.Time

	// compared against when the email is unknown so both paths cost a bcrypt run
	dummyHash []byte
}

func NewService(store Store, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	return &Service{store: store, bcryptCost: bcryptCost, now: time.Now, dummyHash: dummy}
}

func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Register creates a user. The email must not be registered yet.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" || !in.Role.Valid() {
		return User{}, errs.E(errs.Validation, "email, password and userType are required")
	}

	_, err := s.store.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return User{}, errs.NewConflict("email already registered")
	case !errs.Is(err, errs.NotFound):
		return User{}, errors.Wrap(err, "register: lookup email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return User{}, errors.Wrap(err, "register: hash password")
	}
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         in.Role,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		DateOfBirth:  in.DateOfBirth,
		Gender:       in.Gender,
		Institution:  in.Institution,
		FieldOfStudy: in.FieldOfStudy,
		CreatedAt:    s.now().UTC(),
	}
	// a concurrent registration can still win the race; the unique index reports it
	if err := s.store.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate checks credentials. A non-empty role must match the stored
// one, otherwise the error is Forbidden.
func (s *Service) Authenticate(ctx context.Context, email, password string, role rbac.Role) (User, error) {
	u, err := s.store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return User{}, errInvalidCredentials
		}
		return User{}, errors.Wrap(err, "authenticate: lookup email")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, errInvalidCredentials
	}
	if role != "" && u.Role != role {
		return User{}, errs.E(errs.Forbidden, "role mismatch")
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.GetByID(ctx, id)
}
