package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/serisow/craftvid/handlers"
	"github.com/serisow/craftvid/notify"
	"github.com/serisow/craftvid/orchestrator"
	"github.com/serisow/craftvid/plugin_registry"
	"github.com/serisow/craftvid/repository"
	"github.com/serisow/craftvid/video"
	"github.com/urfave/negroni"
	"golang.org/x/crypto/acme/autocert"
)

const shutdownTimeout = 15 * time.Second

type Config struct {
	Domains      []string
	CertCacheDir string
	HTTPPort     string
	HTTPSPort    string
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the services the routes are served from.
type Deps struct {
	Logger       *slog.Logger
	Repo         repository.Repository
	Orchestrator *orchestrator.Orchestrator
	Registry     *plugin_registry.PluginRegistry
	Hub          *notify.Hub
	Presets      video.Presets
	Effects      []string
}

func SetupRoutes(d Deps) *mux.Router {
	r := mux.NewRouter()

	scripts := handlers.NewScriptHandler(d.Logger, d.Repo, d.Orchestrator)
	r.HandleFunc("/scripts", scripts.SaveScript).Methods("POST")
	r.HandleFunc("/scripts/{id}", scripts.SaveScript).Methods("PUT")
	r.HandleFunc("/scripts/{id}", scripts.GetScript).Methods("GET")
	r.HandleFunc("/scripts/{id}/batch", scripts.SubmitBatch).Methods("POST")
	r.HandleFunc("/scripts/{id}/status", scripts.GetStatus).Methods("GET")
	r.HandleFunc("/scripts/{id}/compile", scripts.Compile).Methods("POST")
	r.HandleFunc("/scripts/{id}/cancel", scripts.Cancel).Methods("POST")
	r.HandleFunc("/batches/{id}", scripts.GetBatch).Methods("GET")
	r.HandleFunc("/tasks/{id}", scripts.GetTask).Methods("GET")

	scenes := handlers.NewSceneHandler(d.Logger, d.Repo, d.Orchestrator)
	r.HandleFunc("/scenes/{id}", scenes.GetScene).Methods("GET")
	r.HandleFunc("/scenes/{id}/components/{component}/cancel", scenes.CancelComponent).Methods("POST")
	r.HandleFunc("/scenes/{id}/components/{component}/reset", scenes.ResetComponent).Methods("POST")

	catalog := &handlers.CatalogHandler{Presets: d.Presets, Effects: d.Effects, Registry: d.Registry}
	r.HandleFunc("/presets", catalog.ListPresets).Methods("GET")
	r.HandleFunc("/effects", catalog.ListEffects).Methods("GET")
	r.HandleFunc("/providers", catalog.ListProviders).Methods("GET")
	r.HandleFunc("/health", handlers.Health).Methods("GET")

	if d.Hub != nil {
		r.Handle("/workspaces/{id}/progress", &handlers.ProgressHandler{Hub: d.Hub}).Methods("GET")
	}
	return r
}

func SetupNegroni(r *mux.Router) *negroni.Negroni {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.Use(negroni.NewLogger())
	n.UseHandler(r)
	return n
}

// ServeProduction serves TLS with certificates obtained through ACME until
// ctx is done.
func ServeProduction(ctx context.Context, logger *slog.Logger, n *negroni.Negroni, cfg Config) error {
	autocertManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Cache:      autocert.DirCache(cfg.CertCacheDir),
	}

	// Port 80 answers the http-01 challenges and redirects everything else
	// to HTTPS.
	challenge := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      autocertManager.HTTPHandler(nil),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ACME challenge server failed", slog.String("error", err.Error()))
		}
	}()
	defer challenge.Close()

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPSPort,
		Handler: n,
		TLSConfig: &tls.Config{
			GetCertificate:   autocertManager.GetCertificate,
			CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
		},
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	logger.Info("Serving HTTPS", slog.String("addr", srv.Addr), slog.Any("domains", cfg.Domains))
	return serve(ctx, srv, func() error { return srv.ListenAndServeTLS("", "") })
}

// ServeDevelopment serves plain HTTP until ctx is done.
func ServeDevelopment(ctx context.Context, logger *slog.Logger, n *negroni.Negroni, cfg Config) error {
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      n,
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	logger.Info("Serving HTTP", slog.String("addr", srv.Addr))
	return serve(ctx, srv, srv.ListenAndServe)
}

func serve(ctx context.Context, srv *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- listen() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
