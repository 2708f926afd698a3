package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/scoring"
	"github.com/fairyhunter13/cv-rag/internal/service/suggest"
	"github.com/fairyhunter13/cv-rag/internal/usecase"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Extensions accepted for CV uploads. The extractor sniffs the real
// content type afterwards, so the allowlist is only a first gate.
var allowedExt = map[string]struct{}{
	".pdf": {},
	".txt": {},
	".md":  {},
}

// Server bundles the handler dependencies.
type Server struct {
	cfg       config.Config
	engine    *usecase.Engine
	sessions  domain.SessionRepository
	suggester *suggest.Engine
	scorer    *scoring.Service
	extractor domain.TextExtractor

	// Readiness checks; nil checks are skipped.
	StoreCheck    func(ctx domain.Context) error
	SessionsCheck func(ctx domain.Context) error
}

// NewServer constructs the handler set.
func NewServer(cfg config.Config, engine *usecase.Engine, sessions domain.SessionRepository,
	suggester *suggest.Engine, scorer *scoring.Service, extractor domain.TextExtractor) *Server {
	return &Server{
		cfg:       cfg,
		engine:    engine,
		sessions:  sessions,
		suggester: suggester,
		scorer:    scorer,
		extractor: extractor,
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

type queryRequest struct {
	Question  string             `json:"question" validate:"required"`
	SessionID string             `json:"session_id"`
	CVIDs     []string           `json:"cv_ids"`
	K         int                `json:"k" validate:"omitempty,min=1,max=50"`
	Threshold float64            `json:"threshold" validate:"omitempty,gt=0,lte=1"`
	Weights   map[string]float64 `json:"weights"`
}

// QueryHandler runs the retrieval pipeline for one question.
func (s *Server) QueryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}

		p := usecase.QueryParams{
			Question:  req.Question,
			SessionID: req.SessionID,
			CVIDs:     req.CVIDs,
			K:         req.K,
			Threshold: req.Threshold,
			Weights:   req.Weights,
		}
		// A session scopes the corpus: its CV set becomes the filter and
		// the corpus size unless the request narrows it further.
		if req.SessionID != "" {
			if sess, err := s.sessions.Get(r.Context(), req.SessionID); err == nil && len(sess.CVIDs) > 0 {
				if len(p.CVIDs) == 0 {
					p.CVIDs = sess.CVIDs
				}
				p.TotalCVs = len(sess.CVIDs)
			}
		}

		resp, err := s.engine.Query(r.Context(), p)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// UploadCVHandler ingests one CV from a multipart upload. An optional
// session_id form field attaches the CV to that session.
func (s *Server) UploadCVHandler() http.HandlerFunc {
	maxBytes := s.cfg.MaxUploadMB << 20
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			writeError(w, r, fmt.Errorf("%w: multipart parse: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: missing file field", domain.ErrInvalidArgument), nil)
			return
		}
		defer func() { _ = file.Close() }()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if _, ok := allowedExt[ext]; !ok {
			writeError(w, r, fmt.Errorf("%w: unsupported extension %q", domain.ErrInvalidArgument, ext), nil)
			return
		}

		text, err := s.extractor.Extract(r.Context(), header.Filename, file, header.Size)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.engine.IndexCV(r.Context(), header.Filename, text)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		if sessionID := r.FormValue("session_id"); sessionID != "" {
			if err := s.sessions.AddCVs(r.Context(), sessionID, []string{res.CVID}); err != nil {
				writeError(w, r, err, map[string]string{"cv_id": res.CVID})
				return
			}
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// DeleteCVHandler removes a CV and its chunks.
func (s *Server) DeleteCVHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.engine.DeleteCV(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
	}
}

// StatsHandler reports vector store contents.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.engine.Stats(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

type createSessionRequest struct {
	Name string `json:"name" validate:"omitempty,max=200"`
}

// CreateSessionHandler opens a conversation session.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		now := time.Now().UTC()
		sess := domain.Session{
			ID:        "sess_" + strings.ToLower(ulid.Make().String()),
			Name:      req.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.sessions.Create(r.Context(), sess); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	}
}

// GetSessionHandler returns one session with its history.
func (s *Server) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

// DeleteSessionHandler removes a session and resets its suggestion
// dedup state.
func (s *Server) DeleteSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.sessions.Delete(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		s.suggester.Reset(id)
		writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
	}
}

type addCVsRequest struct {
	CVIDs []string `json:"cv_ids" validate:"required,min=1,dive,required"`
}

// AddSessionCVsHandler attaches already-indexed CVs to a session.
func (s *Server) AddSessionCVsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addCVsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		id := chi.URLParam(r, "id")
		if err := s.sessions.AddCVs(r.Context(), id, req.CVIDs); err != nil {
			writeError(w, r, err, nil)
			return
		}
		sess, err := s.sessions.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

// SuggestionsHandler returns follow-up question suggestions for a
// session. limit caps the batch; it defaults inside the engine.
func (s *Server) SuggestionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > 10 {
				writeError(w, r, fmt.Errorf("%w: limit must be 1-10", domain.ErrInvalidArgument), nil)
				return
			}
		}

		cvCount := len(sess.CVIDs)
		if cvCount == 0 {
			if stats, serr := s.engine.Stats(r.Context()); serr == nil {
				cvCount = stats.CVCount
			}
		}
		out := s.suggester.Suggest(suggest.State{
			SessionID: sess.ID,
			History:   sess.Messages,
			CVCount:   cvCount,
		}, limit)
		writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": out})
	}
}

type scoreRequest struct {
	CVID      string `json:"cv_id" validate:"required"`
	ProfileID string `json:"profile_id"`
}

// ScoreHandler scores one indexed candidate against a profile.
func (s *Server) ScoreHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if req.ProfileID == "" {
			req.ProfileID = "default"
		}
		meta, err := s.engine.CandidateMetadata(r.Context(), req.CVID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.scorer.ScoreCandidate(req.CVID, meta, req.ProfileID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type createProfileRequest struct {
	Name                 string             `json:"name" validate:"required,max=200"`
	Weights              map[string]float64 `json:"weights" validate:"required,min=1"`
	RequiredSkills       []string           `json:"required_skills"`
	PreferredSkills      []string           `json:"preferred_skills"`
	MinExperienceYears   float64            `json:"min_experience_years" validate:"min=0"`
	IdealExperienceYears float64            `json:"ideal_experience_years" validate:"min=0"`
	RequiredEducation    string             `json:"required_education"`
	PreferredLocations   []string           `json:"preferred_locations"`
}

// CreateProfileHandler registers a scoring profile.
func (s *Server) CreateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		weights := make(map[domain.Criterion]float64, len(req.Weights))
		for k, v := range req.Weights {
			weights[domain.Criterion(k)] = v
		}
		profile, err := s.scorer.CreateProfile(domain.ScoringProfile{
			Name:                 req.Name,
			Weights:              weights,
			RequiredSkills:       req.RequiredSkills,
			PreferredSkills:      req.PreferredSkills,
			MinExperienceYears:   req.MinExperienceYears,
			IdealExperienceYears: req.IdealExperienceYears,
			RequiredEducation:    req.RequiredEducation,
			PreferredLocations:   req.PreferredLocations,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, profile)
	}
}

// ListProfilesHandler returns all registered scoring profiles.
func (s *Server) ListProfilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": s.scorer.Profiles()})
	}
}

// HealthzHandler reports liveness.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler reports readiness by pinging the configured backends.
// Nil checks are skipped so local mode stays ready with no backends.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type checkFn struct {
		name string
		fn   func(ctx domain.Context) error
	}
	return func(w http.ResponseWriter, r *http.Request) {
		checks := []checkFn{
			{"vector_store", s.StoreCheck},
			{"sessions", s.SessionsCheck},
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failures := map[string]string{}
		for _, c := range checks {
			if c.fn == nil {
				continue
			}
			if err := c.fn(ctx); err != nil {
				failures[c.name] = err.Error()
			}
		}
		if len(failures) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":   "unavailable",
				"failures": failures,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
