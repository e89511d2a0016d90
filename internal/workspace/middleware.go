package workspace

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const workspaceIDKey ctxKey = "workspace_id"

// FromContext returns the workspace id resolved for the request.
func FromContext(ctx context.Context) (uint64, bool) {
	v := ctx.Value(workspaceIDKey)
	id, ok := v.(uint64)
	return id, ok
}

// Resolve attaches the request's workspace to the context. A bearer token
// selects the workspace named by its claim; no token means the default
// workspace. Only a present-but-invalid token is rejected.
func Resolve(jwtSvc *JWT, defaultID uint64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := defaultID

			if h := r.Header.Get("Authorization"); h != "" {
				if !strings.HasPrefix(h, "Bearer ") {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				token := strings.TrimPrefix(h, "Bearer ")

				wsID, err := jwtSvc.Verify(token)
				if err != nil {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				id = wsID
			}

			ctx := context.WithValue(r.Context(), workspaceIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
