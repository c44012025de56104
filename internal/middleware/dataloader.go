package middleware

import (
	"context"
	"net/http"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/fieldlog/internal/entityloader"
)

type ctxKey string

const entityLoaderKey ctxKey = "entityLoader"

// DataLoaderMiddleware attaches a request scoped entity loader to the context.
func DataLoaderMiddleware(repo entityloader.Reader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := entityloader.NewEntityLoader(repo)
			ctx := context.WithValue(r.Context(), entityLoaderKey, loader.Loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EntityLoaderFromContext retrieves the dataloader from context
func EntityLoaderFromContext(ctx context.Context) *dataloader.Loader {
	if l, ok := ctx.Value(entityLoaderKey).(*dataloader.Loader); ok {
		return l
	}
	return nil
}
