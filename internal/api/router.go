package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/home", s.handleGetHome)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/{id}", s.handleGetDevice)
				r.Get("/{id}/channels/{index}", s.handleGetChannel)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.handleListGroups)
				r.Get("/{id}", s.handleGetGroup)
			})

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", s.handleListClients)
				r.Get("/{id}", s.handleGetClient)
			})

			r.Get("/history/{id}", s.handleHistory)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}
