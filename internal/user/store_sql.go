package user

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/errs"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

const dateLayout = "2006-01-02"

type SQLStore struct {
	db db.Provider
}

func NewSQLStore(p db.Provider) *SQLStore { return &SQLStore{db: p} }

func (s *SQLStore) Create(ctx context.Context, u User) error {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	var dob sql.NullString
	if u.DateOfBirth != nil {
		dob = sql.NullString{String: u.DateOfBirth.Format(dateLayout), Valid: true}
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO users
		(id,email,password_hash,role,first_name,last_name,date_of_birth,gender,institution,field_of_study,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		u.ID, u.Email, u.PasswordHash, string(u.Role), u.FirstName, u.LastName, dob,
		u.Gender, u.Institution, u.FieldOfStudy, u.CreatedAt.UnixNano())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errs.NewConflict("email already registered")
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

const selectUser = `SELECT id,email,password_hash,role,first_name,last_name,date_of_birth,
	gender,institution,field_of_study,created_at FROM users`

func (s *SQLStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.getOne(ctx, selectUser+` WHERE email=$1`, email)
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (User, error) {
	return s.getOne(ctx, selectUser+` WHERE id=$1`, id)
}

func (s *SQLStore) getOne(ctx context.Context, query string, arg string) (User, error) {
	conn, err := s.db.DB(ctx)
	if err != nil {
		return User{}, err
	}
	var (
		u         User
		role      string
		dob       sql.NullString
		createdAt int64
	)
	err = conn.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &role,
		&u.FirstName, &u.LastName, &dob, &u.Gender, &u.Institution, &u.FieldOfStudy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, errs.NewNotFound("user")
		}
		return User{}, errors.Wrap(err, "select user")
	}
	u.Role = rbac.Role(role)
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	if dob.Valid {
		if t, err := time.Parse(dateLayout, dob.String); err == nil {
			u.DateOfBirth = &t
		}
	}
	return u, nil
}
