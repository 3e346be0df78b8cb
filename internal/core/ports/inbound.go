package ports

import (
	"context"
	"io"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
)

// Investigator is the inbound contract for the full query pipeline:
// guard -> retrieve -> rerank -> synthesize.
type Investigator interface {
	Investigate(ctx context.Context, query string) (*domain.Investigation, error)
}

// DocumentIngestor is the inbound contract for corpus document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for corpus document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous corpus indexing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) (*domain.Document, error)
}
