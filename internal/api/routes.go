package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)
	authed := Chain(chain, Auth(h.schemes, h.logger))

	mux.Handle("GET /ping", chain(http.HandlerFunc(h.Ping)))
	mux.Handle("GET /api/v1/health", chain(http.HandlerFunc(h.Health)))

	// Tasks
	mux.Handle("POST /api/v1/tasks/{queue}", authed(http.HandlerFunc(h.PublishTask)))

	// Test
	mux.Handle("GET /api/v1/test/health", chain(http.HandlerFunc(h.TestHealth)))
	mux.Handle("GET /api/v1/test/security", authed(http.HandlerFunc(h.TestSecurity)))
	mux.Handle("GET /api/v1/test/database", chain(http.HandlerFunc(h.TestDatabase)))
	mux.Handle("GET /api/v1/test/cache", chain(http.HandlerFunc(h.TestGetCache)))
	mux.Handle("POST /api/v1/test/cache", chain(http.HandlerFunc(h.TestSetCache)))
	mux.Handle("POST /api/v1/test/task", authed(http.HandlerFunc(h.UploadTestTask)))
}
