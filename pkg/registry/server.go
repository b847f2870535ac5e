package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/semver"
)

// Server serves a registry directory over the registry protocol.
// It is a development server: every index request re-reads the disk,
// so newly published versions appear without a restart.
type Server struct {
	root   string
	logger *log.Logger
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Logger receives request logs. Nil disables request logging.
	Logger *log.Logger
}

// NewServer creates a server for the registry directory at root.
func NewServer(root string, opts ServerOptions) *Server {
	return &Server{root: root, logger: opts.Logger}
}

// Handler returns the HTTP handler exposing the registry protocol.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.logger != nil {
		r.Use(s.logRequests)
	}
	r.Get("/api/v1/index/{name}", s.handleIndex)
	r.Get("/api/v1/manifests/{name}/{version}", s.handleManifest)
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := errors.ValidatePackageName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Prebuilt index files win over directory scans so static
	// registries and served registries answer identically.
	idx, err := ReadIndexFile(s.root, name)
	if err != nil {
		idx, err = ScanPackage(s.root, name)
	}
	if err != nil {
		if errors.Is(err, errors.ErrCodePackageNotFound) {
			http.Error(w, "package not found", http.StatusNotFound)
			return
		}
		s.logError(r, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(idx); err != nil {
		s.logError(r, err)
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := errors.ValidatePackageName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	version, err := semver.Parse(chi.URLParam(r, "version"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	path := filepath.Join(s.root, name, version.String(), ManifestFilename)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		http.Error(w, "manifest not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logError(r, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/toml")
	_, _ = w.Write(data)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) logError(r *http.Request, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
}
