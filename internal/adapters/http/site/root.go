// Package site serves the embedded guild stats dashboard.
package site

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Error constants
var (
	ErrServe = errors.New("dashboard serve failed")
)

// Register attaches the embedded dashboard to r. The page itself is at /;
// its assets live beside it.
func Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}

	files := http.FileServer(FS())
	r.Get("/", files.ServeHTTP)
	r.Get("/assets/*", files.ServeHTTP)
}
