package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/api/respond"
	"github.com/mind-engage/mindengage-exams/internal/errs"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

const (
	DefaultIssuer = "mindengage-exams"
	DefaultTTL    = 7 * 24 * time.Hour
)

// Service issues and verifies HS256 credentials. It holds no per-token state.
type Service struct {
	hmac   []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithIssuer(iss string) Option          { return func(s *Service) { s.issuer = iss } }

func NewAuthService(secret string, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{hmac: []byte(secret), issuer: DefaultIssuer, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

type Claims struct {
	Role string `json:"role"` // "teacher" or "student"
	jwt.RegisteredClaims
}

func (a *Service) Issue(sub string, role rbac.Role) (string, error) {
	return a.IssueWithTTL(sub, role, a.ttl)
}

func (a *Service) IssueWithTTL(sub string, role rbac.Role, ttl time.Duration) (string, error) {
	if strings.TrimSpace(sub) == "" {
		return "", errors.New("issue token: empty subject")
	}
	if !role.Valid() {
		return "", errors.Errorf("issue token: unknown role %q", role)
	}
	now := a.now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    a.issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := t.SignedString(a.hmac)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Verify checks signature, algorithm, issuer and expiry, then requires both a
// subject and a known role. Every failure is Unauthorized.
func (a *Service) Verify(tokenStr string) (rbac.Identity, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(tokenStr, &c,
		func(t *jwt.Token) (interface{}, error) { return a.hmac, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return rbac.Identity{}, errs.Wrap(errs.Unauthorized, err, "token expired")
		}
		return rbac.Identity{}, errs.Wrap(errs.Unauthorized, err, "invalid token")
	}
	role, ok := rbac.ParseRole(c.Role)
	if c.Subject == "" || !ok {
		return rbac.Identity{}, errs.NewUnauthorized("invalid token payload")
	}
	return rbac.Identity{SubjectID: c.Subject, Role: role}, nil
}

// Authenticate extracts and verifies the bearer credential of r.
func (a *Service) Authenticate(r *http.Request) (rbac.Identity, error) {
	tok, ok := bearerToken(r)
	if !ok {
		return rbac.Identity{}, errs.NewUnauthorized("authentication required")
	}
	return a.Verify(tok)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	tok, found := strings.CutPrefix(h, "Bearer ")
	if !found {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// JWTMiddleware rejects unauthenticated requests and puts the verified
// identity in the request context.
func JWTMiddleware(a *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithIdentity(r.Context(), id)))
		})
	}
}
