package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hmip/internal/model"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var devices []*model.Device
	if t := r.URL.Query().Get("type"); t != "" {
		devices = s.graph.DevicesOfType(t)
	} else {
		devices = s.graph.Devices()
	}
	if devices == nil {
		devices = []*model.Device{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := s.graph.Device(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeBadRequest(w, "channel index must be a non-negative integer")
		return
	}

	ch, ok := s.graph.ResolveChannel(model.ChannelRef{DeviceID: chi.URLParam(r, "id"), Index: index})
	if !ok {
		writeNotFound(w, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}
