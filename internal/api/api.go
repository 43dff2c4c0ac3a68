package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joescharf/eightd/internal/metrics"
	"github.com/joescharf/eightd/internal/rca"
)

// Server provides the REST API handlers.
type Server struct {
	svc            *rca.Service
	logger         *slog.Logger
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	allowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics on m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithAllowedOrigins restricts CORS to the given origins. An empty list, or
// one containing "*", allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// NewServer creates a new API server.
func NewServer(svc *rca.Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns an http.Handler for the API routes. Every resource is
// served both at the root and under /api, with and without a .php suffix.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// The .php forms are the paths the existing web client calls.
	for _, prefix := range []string{"", "/api"} {
		for _, ext := range []string{"", ".php"} {
			problems := prefix + "/problems" + ext
			mux.HandleFunc("GET "+problems, s.getProblems)
			mux.HandleFunc("POST "+problems, s.createProblem)
			mux.HandleFunc("PUT "+problems, s.updateProblem)
			mux.HandleFunc("DELETE "+problems, s.deleteProblem)
			mux.HandleFunc(problems, methodNotAllowed)

			rootCauses := prefix + "/root_causes" + ext
			mux.HandleFunc("GET "+rootCauses, s.rootCauseTree)
			mux.HandleFunc("POST "+rootCauses, s.createRootCause)
			mux.HandleFunc("PUT "+rootCauses, s.updateRootCause)
			mux.HandleFunc("DELETE "+rootCauses, s.deleteRootCause)
			mux.HandleFunc(rootCauses, methodNotAllowed)
		}
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})

	return s.corsMiddleware(requestIDMiddleware(s.instrument(mux)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// writeServiceError maps facade errors onto status codes. Anything that is
// not a validation or not-found error is logged and hidden from the caller.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	msg, public := rca.PublicMessage(err)
	switch {
	case public && errors.Is(err, rca.ErrNotFound):
		writeError(w, http.StatusNotFound, msg)
	case public && errors.Is(err, rca.ErrValidation):
		writeError(w, http.StatusBadRequest, msg)
	default:
		s.requestLogger(r).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Database error occurred")
	}
}

// queryID parses a positive integer query parameter.
func queryID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// typeErrorMessages answer well-formed bodies whose field has the wrong JSON
// type, using the message the field's own validation would give.
var typeErrorMessages = map[string]string{
	"id":                 "Invalid ID",
	"problem_id":         "Valid problem ID is required",
	"parent_id":          "Invalid parent ID",
	"title":              "Title is required",
	"responsible_person": "Responsible person is required",
	"description":        "Description is required",
	"deadline":           "Deadline must be a date in YYYY-MM-DD format",
	"status":             "Invalid status. Must be OPEN or CLOSED",
	"is_root_cause":      "is_root_cause must be a boolean",
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		msg, ok := typeErrorMessages[typeErr.Field]
		if !ok {
			msg = typeErr.Field + " has an invalid type"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	writeError(w, http.StatusBadRequest, "Invalid JSON")
	return false
}

// bodyOrQueryID prefers the id in the body and falls back to ?id=, which is
// where the web client puts it on PUT /problems.php.
func bodyOrQueryID(r *http.Request, bodyID int64) int64 {
	if bodyID > 0 {
		return bodyID
	}
	if id, ok := queryID(r, "id"); ok {
		return id
	}
	return bodyID
}

// --- Problems ---

func (s *Server) getProblems(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("id") {
		problems, err := s.svc.ListProblems(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, problems)
		return
	}

	id, ok := queryID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}
	problem, err := s.svc.GetProblem(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, problem)
}

func (s *Server) createProblem(w http.ResponseWriter, r *http.Request) {
	var in rca.ProblemInput
	if !decodeJSON(w, r, &in) {
		return
	}
	id, err := s.svc.CreateProblem(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      id,
		"message": "Problem created successfully",
	})
}

type problemUpdateRequest struct {
	ID int64 `json:"id"`
	rca.ProblemPatch
}

func (s *Server) updateProblem(w http.ResponseWriter, r *http.Request) {
	var req problemUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = bodyOrQueryID(r, req.ID)
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}
	if _, err := s.svc.UpdateProblem(r.Context(), req.ID, req.ProblemPatch); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Problem updated successfully",
	})
}

func (s *Server) deleteProblem(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}
	if err := s.svc.DeleteProblem(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Problem deleted successfully",
	})
}

// --- Root causes ---

func (s *Server) rootCauseTree(w http.ResponseWriter, r *http.Request) {
	problemID, ok := queryID(r, "problem_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid problem ID")
		return
	}
	forest, err := s.svc.RootCauseTree(r.Context(), problemID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forest)
}

func (s *Server) createRootCause(w http.ResponseWriter, r *http.Request) {
	var in rca.RootCauseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	id, err := s.svc.AddRootCause(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      id,
		"message": "Root cause created successfully",
	})
}

type rootCauseUpdateRequest struct {
	ID int64 `json:"id"`
	rca.RootCausePatch
}

func (s *Server) updateRootCause(w http.ResponseWriter, r *http.Request) {
	var req rootCauseUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = bodyOrQueryID(r, req.ID)
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}
	res, err := s.svc.UpdateRootCause(r.Context(), req.ID, req.RootCausePatch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	body := map[string]any{
		"success":                true,
		"message":                "Root cause updated successfully",
		"problem_status_updated": res.ProblemStatusChanged,
	}
	if res.StatusErr != nil {
		body["status_derivation_failed"] = true
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) deleteRootCause(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}
	res, err := s.svc.DeleteRootCause(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	body := map[string]any{
		"success":                true,
		"message":                "Root cause deleted successfully",
		"deleted":                len(res.Removed),
		"problem_status_updated": res.ProblemStatusChanged,
	}
	if res.StatusErr != nil {
		body["status_derivation_failed"] = true
	}
	writeJSON(w, http.StatusOK, body)
}
