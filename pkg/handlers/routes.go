package handlers

import (
	"net/http"

	"github.com/ekaya-inc/ekaya-tracker/pkg/auth"
	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
)

// ScopeMiddleware wraps a handler with a request-scoped database connection.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// Middlewares are the wrappers API routes are registered with. Every API
// route authenticates first; project routes then resolve a ProjectContext.
type Middlewares struct {
	Auth    *auth.Middleware
	Scope   ScopeMiddleware
	Project *authz.Middleware
}

// authenticated requires a caller and a database connection.
func (m Middlewares) authenticated(h http.HandlerFunc) http.HandlerFunc {
	return m.Auth.RequireAuth(m.Scope(h))
}

// projectScoped additionally resolves the caller's role in path project {pid}.
func (m Middlewares) projectScoped(h http.HandlerFunc) http.HandlerFunc {
	return m.Auth.RequireAuth(m.Scope(m.Project.WithProjectContext("pid")(h)))
}

// projectContext returns the context attached by projectScoped. A missing
// context yields nil, which the services deny.
func projectContext(r *http.Request) *authz.ProjectContext {
	pc, _ := authz.FromContext(r.Context())
	return pc
}
