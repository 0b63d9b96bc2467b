package rbac

import (
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/api/respond"
	"github.com/mind-engage/mindengage-exams/internal/errs"
)

// RequireRole enforces a single role. A request without an identity is
// answered 401 so authentication is always reported before authorization.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				respond.Error(w, r, errs.NewUnauthorized("authentication required"))
				return
			}
			if err := AuthorizeRole(id, role); err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require enforces a single permission from the default policy.
func Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				respond.Error(w, r, errs.NewUnauthorized("authentication required"))
				return
			}
			if !Can(id, perm) {
				respond.Error(w, r, errs.NewForbidden())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
