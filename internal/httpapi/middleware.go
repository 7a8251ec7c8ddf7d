package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/storefront-go/storefront/internal/domain/user"
)

type identityKey struct{}

// identityFrom returns the authenticated caller stored by requireAuth.
func identityFrom(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(user.Identity)
	return id, ok
}

// requireAuth verifies the bearer token and resolves the account it names.
// Requests without a valid token, or whose account no longer exists, get
// 401 without distinguishing the two cases.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}

		userID, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		u, err := s.users.GetByID(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, u.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates administrative endpoints. It must run inside
// requireAuth.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		if !id.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
