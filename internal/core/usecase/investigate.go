package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
)

const noDocumentsMessage = "no relevant documents found"

// InvestigateUseCase composes the full pipeline:
// guard -> retrieve -> rerank -> synthesize. All stages are request-scoped;
// only a query-embedding failure aborts the request.
type InvestigateUseCase struct {
	guard       *GuardUseCase
	retriever   *RetrieveUseCase
	reranker    *RerankUseCase
	synthesizer *SynthesizeUseCase
}

func NewInvestigateUseCase(
	guard *GuardUseCase,
	retriever *RetrieveUseCase,
	reranker *RerankUseCase,
	synthesizer *SynthesizeUseCase,
) *InvestigateUseCase {
	return &InvestigateUseCase{
		guard:       guard,
		retriever:   retriever,
		reranker:    reranker,
		synthesizer: synthesizer,
	}
}

func (uc *InvestigateUseCase) Investigate(ctx context.Context, query string) (*domain.Investigation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "investigate", fmt.Errorf("empty query"))
	}

	decision := uc.guard.Assess(ctx, query)
	if !decision.Admitted {
		slog.Warn("query rejected by guard", "reason", decision.Reason)
		return &domain.Investigation{Query: query, Guard: decision}, nil
	}
	slog.Info("query admitted", "reason", decision.Reason)

	retrieval, err := uc.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}
	if len(retrieval.Documents) == 0 {
		slog.Warn("no evidence retrieved", "strategy", retrieval.Strategy)
		return &domain.Investigation{
			Query:     query,
			Guard:     decision,
			Retrieval: retrieval,
			Message:   noDocumentsMessage,
		}, nil
	}
	slog.Info("evidence retrieved",
		"count", len(retrieval.Documents),
		"strategy", retrieval.Strategy,
		"expansions", len(retrieval.ExpandedQueries),
	)

	retrieval.Documents = uc.reranker.Rank(ctx, query, retrieval.Documents)

	report := uc.synthesizer.Synthesize(ctx, query, retrieval.Documents, retrieval)

	return &domain.Investigation{
		Query:     query,
		Guard:     decision,
		Retrieval: retrieval,
		Report:    report,
	}, nil
}
