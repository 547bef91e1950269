package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
)

// NewHTTPHandler serves the MCP server over streamable HTTP at /mcp, guarded
// by a bearer token. /healthz is open.
func NewHTTPHandler(s *server.MCPServer, token string) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	streamable := server.NewStreamableHTTPServer(s)
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(token))
		r.Handle("/mcp", streamable)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not_found", "no route for %s %s", r.Method, r.URL.Path)
	})
	return r
}
