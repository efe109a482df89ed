// Package api implements the HTTP surface of the wave optimization service.
package api

import (
	"net/http"
	"strings"

	"waveopt/internal/auth"
)

// getPrincipal extracts warehouse and role from the bearer token, falling
// back to dev headers when no token is present.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return pr
		}
	}
	warehouse := r.Header.Get("X-Warehouse-Id")
	role := r.Header.Get("X-Role")
	if warehouse == "" {
		warehouse = "wh_demo"
	}
	if role == "" {
		role = "admin"
	}
	return auth.Principal{Warehouse: warehouse, Role: role}
}
