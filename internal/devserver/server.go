package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/raphaelgruber/loglens/internal/models"
)

// maxUploadBytes bounds the size of an uploaded log.
const maxUploadBytes = 32 << 20

// Config configures the stand-in service.
type Config struct {
	// Token, if set, is required as a bearer token on every API call and
	// is what Login hands out.
	Token string
	// Users maps user ids to passwords accepted by login. More can be
	// added through signup.
	Users map[string]string
	// Step is the progress a job makes per poll (default 25).
	Step int
	// UnavailableEvery makes every Nth job poll answer 503 (0 disables).
	UnavailableEvery int
}

// Server is an in-memory log-analysis service.
type Server struct {
	cfg      Config
	jobs     *JobManager
	records  *RecordStore
	accounts *Accounts
	router   *mux.Router
	polls    atomic.Int64
	logger   *slog.Logger
}

// New creates a server with an empty record store.
func New(cfg Config, logger *slog.Logger) *Server {
	records := NewRecordStore()
	s := &Server{
		cfg:      cfg,
		jobs:     NewJobManager(cfg.Step, records, logger),
		records:  records,
		accounts: NewAccounts(cfg.Users, cfg.Token),
		logger:   logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "loglens-devserver")
}

// Jobs exposes the job manager.
func (s *Server) Jobs() *JobManager {
	return s.jobs
}

// Seed files content as an already processed record.
func (s *Server) Seed(filename, content string, visibility models.Visibility) models.Record {
	if visibility == "" {
		visibility = models.DefaultVisibility
	}
	return s.records.Create(upload{Filename: filename, Content: content, Visibility: visibility})
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(s.logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/auth/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireToken)
	api.HandleFunc("/records", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/records", s.handleListRecords).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}", s.handleGetRecord).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}/similar", s.handleSimilar).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}/tags/{tag}", s.handleDeleteTag).Methods(http.MethodDelete)
	api.HandleFunc("/records/{id}/{field}", s.handlePatch).Methods(http.MethodPatch)
	api.HandleFunc("/jobs/{id}", s.handlePollJob).Methods(http.MethodGet)
	api.HandleFunc("/profile/me", s.handleGetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile/me", s.handleUpdateProfile).Methods(http.MethodPatch)
	api.HandleFunc("/download", s.handleDownload).Methods(http.MethodGet)
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if s.cfg.Token != "" && token != s.cfg.Token && !s.accounts.Valid(token) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	visibility := models.DefaultVisibility
	if v := r.FormValue("visibility"); v != "" {
		if visibility, err = models.ParseVisibility(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	content, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	if len(content) == 0 {
		writeError(w, http.StatusBadRequest, "File is empty")
		return
	}

	job := s.jobs.CreateJob(upload{
		Filename:   hdr.Filename,
		Context:    r.FormValue("context"),
		Visibility: visibility,
		Content:    string(content),
	})
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.ID,
		"message": "Upload accepted",
	})
}

func (s *Server) handlePollJob(w http.ResponseWriter, r *http.Request) {
	if n := s.cfg.UnavailableEvery; n > 0 && s.polls.Add(1)%int64(n) == 0 {
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	job, ok := s.jobs.Poll(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.wire())
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	visibility := q.Get("visibility")
	if visibility != "" && visibility != "all" {
		v, err := models.ParseVisibility(visibility)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		visibility = string(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": s.records.List(visibility, q.Get("tag")),
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minScore := 0.0
	if v := q.Get("min"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "Invalid min")
			return
		}
		// Accept percentages as well as fractions.
		if f > 1 {
			f /= 100
		}
		minScore = f
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	similar, err := s.records.Similar(mux.Vars(r)["id"], minScore, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if similar == nil {
		similar = []models.SimilarityCandidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"similar_records": similar})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	field := models.MetadataField(vars["field"])
	if !field.Valid() {
		writeError(w, http.StatusNotFound, "Unknown field")
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	value, ok := body[string(field)]
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing "+string(field))
		return
	}

	if err := s.records.Patch(vars["id"], field, value); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": strings.ReplaceAll(string(field), "_", " ") + " updated"})
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.records.DeleteTag(vars["id"], vars["tag"]); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Tag removed"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	content, err := s.records.File(p)
	switch {
	case errors.Is(err, ErrAccessDenied):
		writeError(w, http.StatusForbidden, "Access denied")
		return
	case err != nil:
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, content)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
