package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

func (s *Server) handleRecentActivities(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, storage.DefaultActivityLimit)
	if !ok {
		return
	}
	acts, err := s.DB.RecentActivities(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, acts)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, storage.DefaultUserLimit)
	if !ok {
		return
	}
	users, err := s.DB.ListUsers(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, users)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var data dashboardData
	var err error
	if data.Activities, err = s.DB.RecentActivities(ctx, storage.DefaultActivityLimit); err != nil {
		utils.Log.Errorf("Dashboard: activities: %v", err)
		data.Err = err
	}
	if data.Users, err = s.DB.ListUsers(ctx, storage.DefaultUserLimit); err != nil {
		utils.Log.Errorf("Dashboard: users: %v", err)
		data.Err = err
	}
	if data.Stats, err = s.DB.Stats(ctx); err != nil {
		utils.Log.Errorf("Dashboard: stats: %v", err)
		data.Err = err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardPage(data).Render(w); err != nil {
		utils.Log.Errorf("Dashboard: render: %v", err)
	}
}

// limitParam reads ?limit=N. Missing or non-positive values fall back to def.
func limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, "limit must be an integer", http.StatusBadRequest)
		return 0, false
	}
	if n <= 0 {
		return def, true
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Log.Errorf("encode response: %v", err)
	}
}
