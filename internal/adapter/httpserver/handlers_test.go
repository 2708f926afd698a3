package httpserver_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/adapter/ai/stub"
	"github.com/fairyhunter13/cv-rag/internal/adapter/httpserver"
	repomem "github.com/fairyhunter13/cv-rag/internal/adapter/repo/memory"
	"github.com/fairyhunter13/cv-rag/internal/adapter/textextractor/pdf"
	vectormem "github.com/fairyhunter13/cv-rag/internal/adapter/vector/memory"
	"github.com/fairyhunter13/cv-rag/internal/app"
	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/service/chunker"
	"github.com/fairyhunter13/cv-rag/internal/service/contextres"
	"github.com/fairyhunter13/cv-rag/internal/service/generate"
	"github.com/fairyhunter13/cv-rag/internal/service/guardrail"
	"github.com/fairyhunter13/cv-rag/internal/service/outputparse"
	"github.com/fairyhunter13/cv-rag/internal/service/rerank"
	"github.com/fairyhunter13/cv-rag/internal/service/retrieval"
	"github.com/fairyhunter13/cv-rag/internal/service/scoring"
	"github.com/fairyhunter13/cv-rag/internal/service/structures"
	"github.com/fairyhunter13/cv-rag/internal/service/suggest"
	"github.com/fairyhunter13/cv-rag/internal/service/understand"
	"github.com/fairyhunter13/cv-rag/internal/service/verify"
	"github.com/fairyhunter13/cv-rag/internal/usecase"
)

const sampleCV = `Alice Martin
Paris, France

Summary
Backend engineer focused on distributed systems.

Experience
Senior Backend Engineer | Acme Corp
Jan 2019 - Present
- Built Python and Go services on AWS.

Skills
Python, Go, AWS, Docker

Languages
English, French
`

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Config{
		DefaultMode:             config.ModeLocal,
		RetrievalK:              8,
		RetrievalScoreThreshold: 0.1,
		HistoryTurns:            6,
		MaxUploadMB:             10,
		CORSAllowOrigins:        "*",
		RateLimitPerMin:         1000,
		HTTPWriteTimeout:        10 * time.Second,
		Chunker: config.ChunkerConfig{
			HighHopTenureYears:   1.5,
			LowHopScore:          0.3,
			HighHopScore:         0.5,
			GapYears:             1,
			UndatedPositionYears: 2.5,
			FallbackYears:        1.5,
			MaxTotalYears:        40,
			FullCVMaxChars:       4000,
		},
	}
	llm := stub.NewLLM()
	embedder := stub.NewEmbedder()
	store := vectormem.New()
	sessions := repomem.NewSessionRepo()
	tax := config.DefaultTaxonomy()

	engine := usecase.New(usecase.Deps{
		Config:       cfg,
		Chunker:      chunker.New(cfg.Chunker, tax),
		Resolver:     contextres.New(),
		Understander: understand.New(llm, "stub"),
		Guard:        guardrail.New(),
		Retriever:    retrieval.New(embedder, store, cfg.RetrievalK, cfg.RetrievalScoreThreshold),
		Reranker:     rerank.New(llm, "stub", false),
		Generator:    generate.New(llm, "stub", nil),
		Verifier:     verify.New(llm, "stub", false),
		Parser:       outputparse.New(),
		Router:       structures.NewRouter(),
		Embedder:     embedder,
		Store:        store,
		Sessions:     sessions,
	})
	suggester := suggest.New(suggest.DefaultBank(), tax, 1)
	srv := httpserver.NewServer(cfg, engine, sessions, suggester, scoring.New(), pdf.New())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.BuildRouter(cfg, log, srv)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func uploadCV(t *testing.T, h http.Handler, filename, content, sessionID string) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if sessionID != "" {
		require.NoError(t, w.WriteField("session_id", sessionID))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/cv", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

func TestQueryEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	uploadCV(t, h, "alice_martin.txt", sampleCV, "")

	rec := doJSON(t, h, http.MethodPost, "/v1/query", map[string]interface{}{
		"question": "Who has Python experience?",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["answer"])
	assert.Equal(t, true, body["guardrail_passed"])
	assert.NotEmpty(t, body["sources"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestQueryValidation(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/query", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "INVALID_ARGUMENT", errObj["code"])
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "cv.exe")
	require.NoError(t, err)
	_, err = part.Write([]byte("binary"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/cv", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadStatsDelete(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	body := uploadCV(t, h, "alice_martin.txt", sampleCV, "")
	cvID, _ := body["cv_id"].(string)
	require.NotEmpty(t, cvID)
	assert.Equal(t, "Alice Martin", body["candidate_name"])

	rec := doJSON(t, h, http.MethodGet, "/v1/cv/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)
	assert.Equal(t, float64(1), stats["cv_count"])

	rec = doJSON(t, h, http.MethodDelete, "/v1/cv/"+cvID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/cv/stats", nil)
	stats = decodeBody(t, rec)
	assert.Equal(t, float64(0), stats["cv_count"])
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/sessions", map[string]interface{}{"name": "screening"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decodeBody(t, rec)
	id, _ := sess["session_id"].(string)
	require.True(t, strings.HasPrefix(id, "sess_"))

	uploaded := uploadCV(t, h, "alice_martin.txt", sampleCV, id)
	cvID, _ := uploaded["cv_id"].(string)

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	cvIDs, _ := got["cv_ids"].([]interface{})
	require.Len(t, cvIDs, 1)
	assert.Equal(t, cvID, cvIDs[0])

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/v1/sessions/%s/suggestions?limit=3", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suggestions, _ := decodeBody(t, rec)["suggestions"].([]interface{})
	require.NotEmpty(t, suggestions)
	require.LessOrEqual(t, len(suggestions), 3)

	rec = doJSON(t, h, http.MethodDelete, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionScopedQueryRecordsHistory(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/sessions", map[string]interface{}{"name": "followups"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody(t, rec)["session_id"].(string)
	uploadCV(t, h, "alice_martin.txt", sampleCV, id)

	rec = doJSON(t, h, http.MethodPost, "/v1/query", map[string]interface{}{
		"question":   "Who has AWS experience?",
		"session_id": id,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/"+id, nil)
	got := decodeBody(t, rec)
	messages, _ := got["messages"].([]interface{})
	require.Len(t, messages, 2)
}

func TestScoreEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	body := uploadCV(t, h, "alice_martin.txt", sampleCV, "")
	cvID := body["cv_id"].(string)

	rec := doJSON(t, h, http.MethodPost, "/v1/score", map[string]interface{}{"cv_id": cvID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody(t, rec)
	assert.Equal(t, cvID, res["cv_id"])
	assert.Equal(t, "default", res["profile_id"])
	overall, ok := res["overall"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, overall, 0.0)
	assert.LessOrEqual(t, overall, 100.0)
	assert.NotEmpty(t, res["grade"])

	rec = doJSON(t, h, http.MethodPost, "/v1/score", map[string]interface{}{"cv_id": "cv_missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/profiles", map[string]interface{}{
		"name": "Senior Backend",
		"weights": map[string]float64{
			"skills_match": 3,
			"experience":   1,
		},
		"required_skills":        []string{"Go", "Python"},
		"min_experience_years":   3,
		"ideal_experience_years": 8,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	profile := decodeBody(t, rec)
	require.NotEmpty(t, profile["id"])
	weights, _ := profile["weights"].(map[string]interface{})
	assert.InDelta(t, 0.75, weights["skills_match"], 0.001)

	rec = doJSON(t, h, http.MethodGet, "/v1/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profiles, _ := decodeBody(t, rec)["profiles"].([]interface{})
	require.Len(t, profiles, 2)

	rec = doJSON(t, h, http.MethodPost, "/v1/profiles", map[string]interface{}{"name": "empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
