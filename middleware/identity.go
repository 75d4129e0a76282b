package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Header names set by the upstream API gateway after it authenticates the
// caller. This service trusts them; it performs no token validation itself.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// IdentityMiddleware extracts tenant and user identity from gateway headers
type IdentityMiddleware struct {
	logger *zap.Logger
}

// NewIdentityMiddleware creates a new IdentityMiddleware
func NewIdentityMiddleware(logger *zap.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{logger: logger}
}

// RequireIdentity rejects requests missing valid tenant/user headers and
// stores both IDs in the request context for downstream handlers.
func (m *IdentityMiddleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.Header.Get(HeaderTenantID))
		if err != nil || tenantID == uuid.Nil {
			m.logger.Warn("request missing tenant identity",
				zap.String("path", r.URL.Path))
			writeIdentityError(w, "Missing or invalid tenant identity")
			return
		}

		userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
		if err != nil || userID == uuid.Nil {
			m.logger.Warn("request missing user identity",
				zap.String("path", r.URL.Path),
				zap.String("tenant_id", tenantID.String()))
			writeIdentityError(w, "Missing or invalid user identity")
			return
		}

		ctx := WithTenantID(r.Context(), tenantID)
		ctx = WithUserID(ctx, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeIdentityError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}
