package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// RequireAPIKey authenticates the api_key header and stores the key in the
// request context. Unauthenticated requests get 401.
func RequireAPIKey(authn *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, err := authn.Authenticate(ctx, r.Header.Get(APIKeyHeader))
			if err != nil {
				writeError(ctx, w, err)
				return
			}

			ctx = auth.WithKey(ctx, info)
			ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
