package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
	"github.com/mkovalev/crypto-investigator/internal/core/ports"
)

const (
	guardSystemPrompt = "You are an AI security filter for an investigation system."

	// Sentinel pair the guard prompt instructs the model to end with. The
	// reject sentinel is checked first because the admit sentinel is its
	// suffix.
	sentinelRelevant    = "RELEVANT:"
	sentinelNonRelevant = "NON-RELEVANT:"

	reasonFilterDisabled = "Filtering is disabled, query allowed."
	reasonKeywordMatch   = "Query includes relevant investigation-related terms."
	reasonNoSentinel     = "Query seems unrelated to the investigation."
	reasonGateFailure    = "Error validating query, allowing it to proceed."

	maxReasonLength = 150
)

// GuardUseCase admits or rejects an incoming query before any retrieval work
// is spent. Keyword matches admit without an LLM call; otherwise an LLM
// classifier decides. A failed classifier call fails open.
type GuardUseCase struct {
	chat          ports.ChatModel
	filterEnabled bool
	keywords      []string
}

func NewGuardUseCase(chat ports.ChatModel, filterEnabled bool, keywords []string) *GuardUseCase {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &GuardUseCase{
		chat:          chat,
		filterEnabled: filterEnabled,
		keywords:      lowered,
	}
}

func (uc *GuardUseCase) Assess(ctx context.Context, query string) domain.GuardDecision {
	if !uc.filterEnabled {
		return domain.GuardDecision{Admitted: true, Reason: reasonFilterDisabled}
	}

	lowered := strings.ToLower(query)
	for _, kw := range uc.keywords {
		if strings.Contains(lowered, kw) {
			return domain.GuardDecision{Admitted: true, Reason: reasonKeywordMatch}
		}
	}

	return uc.validateWithLLM(ctx, query)
}

func (uc *GuardUseCase) validateWithLLM(ctx context.Context, query string) domain.GuardDecision {
	content, err := uc.chat.Complete(ctx, guardSystemPrompt, buildGuardPrompt(query), 0.1, 300)
	if err != nil {
		// Blocking all investigation capability on a provider outage is
		// worse than occasionally processing an off-topic query.
		slog.Error("guard llm validation failed, admitting query", "error", err)
		return domain.GuardDecision{Admitted: true, Reason: reasonGateFailure}
	}

	if idx := strings.Index(content, sentinelNonRelevant); idx >= 0 {
		return domain.GuardDecision{Admitted: false, Reason: extractReason(content[:idx])}
	}
	if idx := strings.Index(content, sentinelRelevant); idx >= 0 {
		return domain.GuardDecision{Admitted: true, Reason: extractReason(content[:idx])}
	}
	return domain.GuardDecision{Admitted: false, Reason: reasonNoSentinel}
}

// extractReason collapses the explanation preceding the sentinel into a
// single display line of at most maxReasonLength characters.
func extractReason(explanation string) string {
	collapsed := strings.Join(strings.Fields(explanation), " ")
	// Truncate by runes, not bytes; model explanations are not always ASCII.
	runes := []rune(collapsed)
	if len(runes) > maxReasonLength {
		return string(runes[:maxReasonLength-3]) + "..."
	}
	return collapsed
}
