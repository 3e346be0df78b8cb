package ports

import (
	"context"
	"io"
	"time"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
)

// Embedder builds vectors for corpus chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes corpus chunks and performs similarity search. Search
// scores are raw cosine similarity, not normalized by contract.
type VectorStore interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.Evidence, error)
}

// ChatModel is the narrow completion contract the pipeline consumes. The core
// never assumes structured output beyond the sentinel-phrase and JSON-array
// conventions its own prompts impose.
type ChatModel interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error)
}

// ReportStore persists generated reports and hands out presigned URLs.
type ReportStore interface {
	UploadReport(ctx context.Context, report *domain.Report) (*domain.StoredReport, error)
	ListRecent(ctx context.Context, limit int) ([]domain.StoredReport, error)
}

// DocumentRepository persists and reads corpus document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetChunkCount(ctx context.Context, id string, count int) error
}

// ObjectStorage stores raw source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes corpus ingestion events. The consumer
// handler receives the publish-side enqueue time so queue lag can be measured
// from the event itself; it is zero for events without one.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(ctx context.Context, documentID string, enqueuedAt time.Time) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits extracted text into embeddable chunks.
type Chunker interface {
	Split(text string) []string
}
