package domain

import "io"

// EmbedResult carries embeddings plus provider accounting.
type EmbedResult struct {
	Embeddings [][]float32
	TokensUsed int
	LatencyMS  int64
}

// Embedder turns texts into dense vectors (port).
type Embedder interface {
	EmbedTexts(ctx Context, texts []string) (EmbedResult, error)
	EmbedQuery(ctx Context, text string) ([]float32, error)
}

// SearchOptions tunes a vector search.
type SearchOptions struct {
	K             int
	Threshold     float64
	CVIDs         []string
	DiversifyByCV bool
}

// StoreStats summarizes vector store contents.
type StoreStats struct {
	CVCount    int `json:"cv_count"`
	ChunkCount int `json:"chunk_count"`
	VectorDim  int `json:"vector_dim"`
}

// VectorStore owns chunks and their embeddings (port).
// Implementations must be safe for interleaved reads and writes.
type VectorStore interface {
	AddDocuments(ctx Context, chunks []Chunk) error
	Search(ctx Context, vector []float32, opts SearchOptions) ([]SearchResult, error)
	Stats(ctx Context) (StoreStats, error)
	DeleteByCVID(ctx Context, cvID string) error
}

// GenerateRequest is one LLM generation call.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// GenerateResult carries the model text plus accounting.
type GenerateResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
}

// LLM generates text from prompts (port).
type LLM interface {
	Generate(ctx Context, req GenerateRequest) (GenerateResult, error)
}

// Reranker re-orders retrieved chunks by LLM-judged relevance (port).
// Implementations must pass results through unchanged on failure.
type Reranker interface {
	Rerank(ctx Context, query string, results []SearchResult) ([]SearchResult, error)
}

// TextExtractor turns uploaded bytes into plain text (port).
type TextExtractor interface {
	Extract(ctx Context, filename string, r io.Reader, size int64) (string, error)
}

// SessionRepository stores sessions (port).
type SessionRepository interface {
	Create(ctx Context, s Session) error
	Get(ctx Context, id string) (Session, error)
	AddCVs(ctx Context, id string, cvIDs []string) error
	AppendMessage(ctx Context, id string, m Message) error
	Delete(ctx Context, id string) error
}

// EvalSink appends per-query telemetry (port). Append is called once
// per query, after the full response is assembled; implementations must
// be safe for concurrent use and never read back at runtime.
type EvalSink interface {
	Append(ctx Context, rec EvalRecord) error
	Close() error
}
