package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
)

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	var groups []*model.Group
	if t := r.URL.Query().Get("type"); t != "" {
		groups = s.graph.GroupsOfType(t)
	} else {
		groups = s.graph.Groups()
	}
	if groups == nil {
		groups = []*model.Group{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graph.Group(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "group not found")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListClients(w http.ResponseWriter, _ *http.Request) {
	clients := s.graph.Clients()
	if clients == nil {
		clients = []*model.Client{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clients": clients,
		"count":   len(clients),
	})
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, ok := s.graph.Client(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
