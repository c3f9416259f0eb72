package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/serisow/craftvid/orchestrator"
	"github.com/serisow/craftvid/repository"
)

type SceneHandler struct {
	logger *slog.Logger
	repo   repository.Repository
	orch   *orchestrator.Orchestrator
}

func NewSceneHandler(logger *slog.Logger, repo repository.Repository, orch *orchestrator.Orchestrator) *SceneHandler {
	return &SceneHandler{logger: logger, repo: repo, orch: orch}
}

func (h *SceneHandler) GetScene(w http.ResponseWriter, r *http.Request) {
	scene, err := h.repo.GetScene(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

func (h *SceneHandler) CancelComponent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	component, ok := parseComponent(vars["component"])
	if !ok {
		writeJSONError(w, "Unknown component", http.StatusBadRequest)
		return
	}
	cancelled, err := h.orch.CancelComponent(r.Context(), vars["id"], component)
	if err != nil {
		writeError(w, err)
		return
	}
	if !cancelled {
		writeJSONError(w, "Component is not in flight", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Component cancelled"})
}

// ResetComponent moves a component back to pending, including out of
// cancelled.
func (h *SceneHandler) ResetComponent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	component, ok := parseComponent(vars["component"])
	if !ok {
		writeJSONError(w, "Unknown component", http.StatusBadRequest)
		return
	}
	if err := h.orch.Reset(r.Context(), vars["id"], component); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("Component reset", slog.String("scene_id", vars["id"]), slog.String("component", string(component)))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Component reset"})
}
