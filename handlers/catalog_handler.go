package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/serisow/craftvid/notify"
	"github.com/serisow/craftvid/plugin_registry"
	"github.com/serisow/craftvid/video"
)

// CatalogHandler lists what a batch can ask for.
type CatalogHandler struct {
	Presets  video.Presets
	Effects  []string
	Registry *plugin_registry.PluginRegistry
}

func (h *CatalogHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	out := make([]video.Preset, 0, len(h.Presets))
	for _, name := range h.Presets.Names() {
		out = append(out, h.Presets[name])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CatalogHandler) ListEffects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Effects)
}

func (h *CatalogHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"speech": h.Registry.SpeechServiceNames(),
		"image":  h.Registry.ImageServiceNames(),
	})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProgressHandler upgrades to a websocket that streams the events of one
// workspace.
type ProgressHandler struct {
	Hub *notify.Hub
}

func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Hub.ServeWS(w, r, mux.Vars(r)["id"])
}
