package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
	"github.com/mkovalev/crypto-investigator/internal/core/ports"
)

const expansionSystemPrompt = "You are a cybercrime forensic assistant."

var errEmptyExpansion = errors.New("expansion array contained no usable queries")

// RetrieveUseCase turns a query into a deduplicated evidence candidate set.
// Under the multi-step strategy it widens recall by running additional
// searches for LLM-generated query variants; the variants run concurrently
// and a slow one is dropped rather than allowed to stall the rest.
type RetrieveUseCase struct {
	embedder ports.Embedder
	vectorDB ports.VectorStore
	chat     ports.ChatModel

	topK             int
	strategy         domain.RetrievalStrategy
	expansionTimeout time.Duration
}

func NewRetrieveUseCase(
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	chat ports.ChatModel,
	topK int,
	strategy domain.RetrievalStrategy,
	expansionTimeout time.Duration,
) *RetrieveUseCase {
	if topK <= 0 {
		topK = 5
	}
	if expansionTimeout <= 0 {
		expansionTimeout = 15 * time.Second
	}
	return &RetrieveUseCase{
		embedder:         embedder,
		vectorDB:         vectorDB,
		chat:             chat,
		topK:             topK,
		strategy:         strategy,
		expansionTimeout: expansionTimeout,
	}
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, query string) (*domain.RetrievalResult, error) {
	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		// The one fatal stage: without a query vector there is nothing
		// to search for.
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}

	initial := uc.search(ctx, queryVector)

	if uc.strategy != domain.StrategyMultiStep {
		return &domain.RetrievalResult{
			Documents: dedupeByID(initial),
			Strategy:  domain.StrategySingleStep,
		}, nil
	}

	expansions := uc.expandQuery(ctx, query)
	expanded := uc.searchExpansions(ctx, expansions)

	merged := make([]domain.Evidence, 0, len(initial)+len(expanded)*uc.topK)
	merged = append(merged, initial...)
	for _, results := range expanded {
		merged = append(merged, results...)
	}

	return &domain.RetrievalResult{
		Documents:       dedupeByID(merged),
		Strategy:        domain.StrategyMultiStep,
		ExpandedQueries: expansions,
	}, nil
}

func (uc *RetrieveUseCase) search(ctx context.Context, vector []float32) []domain.Evidence {
	results, err := uc.vectorDB.Search(ctx, vector, uc.topK)
	if err != nil {
		// A failed search pass degrades to an empty contribution; the
		// other passes may still produce evidence.
		slog.Error("vector search failed", "error", err)
		return nil
	}
	return results
}

// expandQuery asks the LLM for alternative search queries. Any failure
// degrades to the original query as the sole expansion; retrieval never
// fails because expansion parsing failed.
func (uc *RetrieveUseCase) expandQuery(ctx context.Context, query string) []string {
	content, err := uc.chat.Complete(ctx, expansionSystemPrompt, buildExpansionPrompt(query), 0.3, 300)
	if err != nil {
		slog.Warn("query expansion call failed, using original query", "error", err)
		return []string{query}
	}

	queries, err := parseExpansionArray(content)
	if err != nil {
		slog.Warn("query expansion parse failed, using original query", "error", err)
		return []string{query}
	}
	return queries
}

// searchExpansions embeds and searches every expansion concurrently, one
// goroutine per expansion, each bounded by the per-expansion timeout. Results
// come back indexed by expansion so the merge order stays deterministic.
func (uc *RetrieveUseCase) searchExpansions(ctx context.Context, expansions []string) [][]domain.Evidence {
	results := make([][]domain.Evidence, len(expansions))

	var wg sync.WaitGroup
	for i, expansion := range expansions {
		wg.Add(1)
		go func(idx int, q string) {
			defer wg.Done()

			expCtx, cancel := context.WithTimeout(ctx, uc.expansionTimeout)
			defer cancel()

			vector, err := uc.embedder.EmbedQuery(expCtx, q)
			if err != nil {
				slog.Warn("expansion embedding failed, excluding expansion", "expansion", q, "error", err)
				return
			}
			results[idx] = uc.search(expCtx, vector)
		}(i, expansion)
	}
	wg.Wait()

	return results
}

func parseExpansionArray(content string) ([]string, error) {
	raw := content
	// Models occasionally wrap the array in a markdown fence; cut down to
	// the outermost brackets before decoding.
	if start, end := strings.Index(raw, "["), strings.LastIndex(raw, "]"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	var queries []string
	if err := json.Unmarshal([]byte(raw), &queries); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errEmptyExpansion
	}
	return out, nil
}

// dedupeByID collapses duplicates across search passes, keeping the
// first-seen entry per id so downstream citation numbering is stable.
func dedupeByID(docs []domain.Evidence) []domain.Evidence {
	seen := make(map[string]struct{}, len(docs))
	out := make([]domain.Evidence, 0, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.ID]; ok {
			continue
		}
		seen[doc.ID] = struct{}{}
		out = append(out, doc)
	}
	return out
}
