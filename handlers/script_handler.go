package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/serisow/craftvid/orchestrator"
	"github.com/serisow/craftvid/repository"
	"github.com/serisow/craftvid/script_type"
	"github.com/serisow/craftvid/status"
)

type ScriptHandler struct {
	logger *slog.Logger
	repo   repository.Repository
	orch   *orchestrator.Orchestrator
}

func NewScriptHandler(logger *slog.Logger, repo repository.Repository, orch *orchestrator.Orchestrator) *ScriptHandler {
	return &ScriptHandler{
		logger: logger,
		repo:   repo,
		orch:   orch,
	}
}

// SaveScript creates a script or updates its text. Generated assets are
// never taken from the request.
func (h *ScriptHandler) SaveScript(w http.ResponseWriter, r *http.Request) {
	var script script_type.Script
	if err := json.NewDecoder(r.Body).Decode(&script); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if id, ok := mux.Vars(r)["id"]; ok {
		script.ID = id
	}
	if script.ID == "" {
		writeJSONError(w, "Script id is required", http.StatusBadRequest)
		return
	}
	script.CompiledVideo = nil
	for i := range script.Scenes {
		sc := &script.Scenes[i]
		if sc.ID == "" {
			writeJSONError(w, "Every scene needs an id", http.StatusBadRequest)
			return
		}
		sc.Image, sc.Voice, sc.Preview = nil, nil, nil
	}
	saved, err := h.orch.SaveScript(r.Context(), &script)
	if err != nil {
		h.logger.Error("Failed to save script", slog.String("script_id", script.ID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *ScriptHandler) GetScript(w http.ResponseWriter, r *http.Request) {
	script, err := h.repo.GetScript(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

// SubmitBatch validates the batch and starts it in the background.
func (h *ScriptHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	scriptID := mux.Vars(r)["id"]

	var opts orchestrator.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	batchID, err := h.orch.Submit(r.Context(), scriptID, opts)
	if err != nil {
		h.logger.Warn("Batch rejected", slog.String("script_id", scriptID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.logger.Info("Batch submitted", slog.String("script_id", scriptID), slog.String("batch_id", batchID))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":  "Batch started",
		"batch_id": batchID,
	})
}

func (h *ScriptHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.orch.Batches().Get(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "Batch not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// GetStatus returns the per-scene generation status of a script.
func (h *ScriptHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	scriptID := mux.Vars(r)["id"]
	snaps, err := h.orch.Status(r.Context(), scriptID)
	if err != nil {
		writeError(w, err)
		return
	}
	ready := len(snaps) > 0
	for _, s := range snaps {
		if s.State != status.StateCompleted {
			ready = false
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"script_id":   scriptID,
		"scenes":      snaps,
		"can_compile": ready,
	})
}

// Compile queues the final render. It answers 409 while any scene is not
// completed or a compile is already running.
func (h *ScriptHandler) Compile(w http.ResponseWriter, r *http.Request) {
	scriptID := mux.Vars(r)["id"]

	var opts orchestrator.CompileOptions
	if err := decodeOptional(r, &opts); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	taskID, err := h.orch.QueueCompile(r.Context(), scriptID, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Compile started",
		"task_id": taskID,
	})
}

func (h *ScriptHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ScriptHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.orch.Task(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "Task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
