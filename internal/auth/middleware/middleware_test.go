package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/errs"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

const secret = "test-secret"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(c *clock) *auth.Service {
	return auth.NewAuthService(secret, 7*24*time.Hour, auth.WithClock(c.now))
}

func sign(t *testing.T, key string, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: issuedAt}
	svc := newService(c)

	tok, err := svc.Issue("user-1", rbac.RoleTeacher)
	require.NoError(t, err)

	id, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, rbac.Identity{SubjectID: "user-1", Role: rbac.RoleTeacher}, id)

	c.t = issuedAt.Add(7*24*time.Hour - time.Second)
	_, err = svc.Verify(tok)
	require.NoError(t, err)

	// the expiry instant itself is already rejected
	c.t = issuedAt.Add(7 * 24 * time.Hour)
	_, err = svc.Verify(tok)
	require.Error(t, err)
	assert.Equal(t, errs.Unauthorized, errs.KindOf(err))

	c.t = issuedAt.Add(30 * 24 * time.Hour)
	_, err = svc.Verify(tok)
	assert.Equal(t, errs.Unauthorized, errs.KindOf(err))
}

func TestIssueWithTTL(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &clock{t: issuedAt}
	svc := newService(c)

	tok, err := svc.IssueWithTTL("dev", rbac.RoleStudent, 30*24*time.Hour)
	require.NoError(t, err)

	c.t = issuedAt.Add(20 * 24 * time.Hour)
	id, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleStudent, id.Role)
}

func TestIssueRejectsBadInput(t *testing.T) {
	svc := newService(&clock{t: time.Now()})
	_, err := svc.Issue("", rbac.RoleTeacher)
	assert.Error(t, err)
	_, err = svc.Issue("u1", rbac.Role("admin"))
	assert.Error(t, err)
}

func TestVerifyFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(&clock{t: now})

	valid := func(role, sub string) *auth.Claims {
		return &auth.Claims{
			Role: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    auth.DefaultIssuer,
				Subject:   sub,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}
	expired := valid("student", "u1")
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	noExp := valid("student", "u1")
	noExp.ExpiresAt = nil
	otherIssuer := valid("student", "u1")
	otherIssuer.Issuer = "someone-else"

	good := sign(t, secret, jwt.SigningMethodHS256, valid("student", "u1"))
	tampered := good[:len(good)-2] + "xx"

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "tampered signature", token: tampered},
		{name: "wrong secret", token: sign(t, "other", jwt.SigningMethodHS256, valid("student", "u1"))},
		{name: "wrong algorithm", token: sign(t, secret, jwt.SigningMethodHS512, valid("student", "u1"))},
		{name: "expired with valid signature", token: sign(t, secret, jwt.SigningMethodHS256, expired)},
		{name: "missing expiry", token: sign(t, secret, jwt.SigningMethodHS256, noExp)},
		{name: "wrong issuer", token: sign(t, secret, jwt.SigningMethodHS256, otherIssuer)},
		{name: "missing subject", token: sign(t, secret, jwt.SigningMethodHS256, valid("student", ""))},
		{name: "missing role", token: sign(t, secret, jwt.SigningMethodHS256, valid("", "u1"))},
		{name: "unknown role", token: sign(t, secret, jwt.SigningMethodHS256, valid("admin", "u1"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			require.Error(t, err)
			assert.Equal(t, errs.Unauthorized, errs.KindOf(err))
		})
	}

	_, err := svc.Verify(good)
	assert.NoError(t, err)
}

func TestTeacherTokenRoleChecks(t *testing.T) {
	svc := newService(&clock{t: time.Now()})
	tok, err := svc.Issue("t1", rbac.RoleTeacher)
	require.NoError(t, err)
	id, err := svc.Verify(tok)
	require.NoError(t, err)

	assert.Equal(t, errs.Forbidden, errs.KindOf(rbac.AuthorizeRole(id, rbac.RoleStudent)))
	assert.NoError(t, rbac.AuthorizeRole(id, rbac.RoleTeacher))
}

func TestJWTMiddleware(t *testing.T) {
	svc := newService(&clock{t: time.Now()})
	tok, err := svc.Issue("s1", rbac.RoleStudent)
	require.NoError(t, err)

	var got rbac.Identity
	h := auth.JWTMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = rbac.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + tok, want: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer abc", want: http.StatusUnauthorized},
		{name: "ok", header: "Bearer " + tok, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/exams", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, rbac.Identity{SubjectID: "s1", Role: rbac.RoleStudent}, got)
}
