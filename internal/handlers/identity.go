package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/tolkdesk/api/internal/platform/httpx"
	"github.com/tolkdesk/api/internal/platform/requestctx"
)

// actorHeader carries the authenticated user identifier set by the edge proxy.
const actorHeader = "X-User-ID"

// RequireActor rejects requests without an authenticated actor and stores the
// identifier on the request context.
func RequireActor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := strings.TrimSpace(r.Header.Get(actorHeader))
			if actorID == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			ctx := requestctx.WithActor(r.Context(), actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromContext(ctx context.Context) string {
	return strings.TrimSpace(requestctx.ActorID(ctx))
}
