package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-exams/internal/api/respond"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/errs"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/user"
)

// ids handed out by the dev token route when none is given
const (
	devTeacherID = "00000000-0000-0000-0000-000000000001"
	devStudentID = "00000000-0000-0000-0000-000000000002"
)

type registerRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	UserType     string `json:"userType" validate:"required,oneof=student teacher"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	DateOfBirth  string `json:"dateOfBirth"` // yyyy-mm-dd or RFC 3339
	Gender       string `json:"gender"`
	Institution  string `json:"institution"`
	FieldOfStudy string `json:"fieldOfStudy"`
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errs.NewValidation("invalid request", map[string]string{"dateOfBirth": "must be a date (yyyy-mm-dd)"})
}

// POST /auth/register
func RegisterHandler(users *user.Service, val *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := val.decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		dob, err := parseDate(req.DateOfBirth)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		_, err = users.Register(r.Context(), user.RegisterInput{
			Email:        req.Email,
			Password:     req.Password,
			Role:         rbac.Role(req.UserType),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			DateOfBirth:  dob,
			Gender:       req.Gender,
			Institution:  req.Institution,
			FieldOfStudy: req.FieldOfStudy,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, map[string]string{"message": "Registered successfully"})
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=student teacher"`
}

type tokenResponse struct {
	Token string    `json:"token"`
	Role  rbac.Role `json:"role"`
	ID    string    `json:"id,omitempty"`
}

// POST /auth/login
func LoginHandler(users *user.Service, tokens *auth.Service, val *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := val.decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		u, err := users.Authenticate(r.Context(), req.Email, req.Password, rbac.Role(req.Role))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		tok, err := tokens.Issue(u.ID, u.Role)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, tokenResponse{Token: tok, Role: u.Role})
	}
}

// GET /auth/dev-token?role=&id=
// Mints a token without touching the user store. Only mounted when enabled.
func DevTokenHandler(tokens *auth.Service, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleTeacher
		if r.URL.Query().Get("role") == string(rbac.RoleStudent) {
			role = rbac.RoleStudent
		}
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			id = devTeacherID
			if role == rbac.RoleStudent {
				id = devStudentID
			}
		}
		if _, err := uuid.Parse(id); err != nil {
			respond.Error(w, r, errs.NewValidation("invalid id", map[string]string{"id": "must be a valid UUID"}))
			return
		}
		tok, err := tokens.IssueWithTTL(id, role, ttl)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, tokenResponse{Token: tok, Role: role, ID: id})
	}
}

// GET /auth/me
func MeHandler(users *user.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := users.Get(r.Context(), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, u)
	}
}
