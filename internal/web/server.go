// Package web is the admin UI: a small chi server for browsing the
// hook database and editing it without going through chat commands.
package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roselinebot/roseline/internal/executor"
	"github.com/roselinebot/roseline/internal/store"
)

// Admin is the executor surface the web UI needs. Mutations reuse the
// chat workflows so the same validation and remote lookups apply.
type Admin interface {
	Stats(ctx context.Context) (vns, hooks int64, err error)
	LocalData(ctx context.Context, id uint64) (*store.VNData, error)
	LocalSearch(ctx context.Context, title string) ([]store.VN, error)
	SetHook(ctx context.Context, refOrTitle, version, code string) (store.Hook, error)
	DelHook(ctx context.Context, refOrTitle, version string) (int64, error)
	DelVN(ctx context.Context, refOrTitle string) (int64, error)
}

type Server struct {
	exec   Admin
	secret string
	log    zerolog.Logger
	http   *http.Server
}

// NewServer builds the admin server. An empty secret leaves mutating
// routes unauthenticated, which is fine for a loopback deployment.
func NewServer(addr string, exec Admin, secret string) *Server {
	s := &Server{
		exec:   exec,
		secret: secret,
		log:    log.With().Str("component", "web").Logger(),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/", s.index)
	r.Get("/search", s.search)
	r.Get("/vn/{id}", s.vnDetail)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/vn/{id}/hook", s.addHook)
		r.Post("/vn/{id}/hook/delete", s.deleteHook)
		r.Post("/vn/{id}/delete", s.deleteVN)
	})
	return r
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("admin web listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger tags every request with an id and logs its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		logger := s.log.With().Str("requestId", requestID).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(ww, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	vns, hooks, err := s.exec.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	renderPage(w, indexTemplate, indexData{VNs: vns, Hooks: hooks})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	vns, err := s.exec.LocalSearch(r.Context(), query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	renderPage(w, searchTemplate, searchData{Query: query, VNs: vns})
}

// vnID parses the {id} route parameter as a positive VN id.
func vnID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) vnDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := vnID(r)
	if !ok {
		http.Error(w, "invalid VN id", http.StatusBadRequest)
		return
	}
	data, err := s.exec.LocalData(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		http.Error(w, "no such VN", http.StatusNotFound)
		return
	}
	renderPage(w, vnTemplate, *data)
}

// addHook adds or updates one version's hook. The VN must already be in
// the database; the chat workflow path handles inserting new VNs.
func (s *Server) addHook(w http.ResponseWriter, r *http.Request) {
	id, ok := vnID(r)
	if !ok {
		http.Error(w, "invalid VN id", http.StatusBadRequest)
		return
	}
	version := r.PostFormValue("version")
	code := r.PostFormValue("code")
	if version == "" || code == "" {
		http.Error(w, "version and code required", http.StatusBadRequest)
		return
	}
	ref := fmt.Sprintf("v%d", id)
	if _, err := s.exec.SetHook(r.Context(), ref, version, code); err != nil {
		s.workflowError(w, r, err)
		return
	}
	http.Redirect(w, r, "/vn/"+strconv.FormatUint(id, 10), http.StatusSeeOther)
}

func (s *Server) deleteHook(w http.ResponseWriter, r *http.Request) {
	id, ok := vnID(r)
	if !ok {
		http.Error(w, "invalid VN id", http.StatusBadRequest)
		return
	}
	version := r.PostFormValue("version")
	if version == "" {
		http.Error(w, "version required", http.StatusBadRequest)
		return
	}
	if _, err := s.exec.DelHook(r.Context(), fmt.Sprintf("v%d", id), version); err != nil {
		s.workflowError(w, r, err)
		return
	}
	http.Redirect(w, r, "/vn/"+strconv.FormatUint(id, 10), http.StatusSeeOther)
}

func (s *Server) deleteVN(w http.ResponseWriter, r *http.Request) {
	id, ok := vnID(r)
	if !ok {
		http.Error(w, "invalid VN id", http.StatusBadRequest)
		return
	}
	if _, err := s.exec.DelVN(r.Context(), fmt.Sprintf("v%d", id)); err != nil {
		s.workflowError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// workflowError maps executor failures onto HTTP statuses. Unknown VNs
// are a 404, everything else is the backend's problem.
func (s *Server) workflowError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Warn().Err(err).Msg("workflow failed")
	switch executor.KindOf(err) {
	case executor.UnknownVN:
		http.Error(w, err.Error(), http.StatusNotFound)
	case executor.InvalidVNID:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
