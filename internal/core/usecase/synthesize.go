package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
	"github.com/mkovalev/crypto-investigator/internal/core/ports"
)

const reportSystemPrompt = "You are a criminal investigation AI assistant."

// SynthesizeUseCase turns ranked evidence into a structured investigation
// report. A provider failure yields a degraded Report with the error marker
// in the text, never an error to the caller.
type SynthesizeUseCase struct {
	chat        ports.ChatModel
	temperature float32
	maxTokens   int
	now         func() time.Time
}

func NewSynthesizeUseCase(chat ports.ChatModel, temperature float32, maxTokens int) *SynthesizeUseCase {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &SynthesizeUseCase{
		chat:        chat,
		temperature: temperature,
		maxTokens:   maxTokens,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SynthesizeUseCase) Synthesize(ctx context.Context, query string, ranked []domain.Evidence, retrieval *domain.RetrievalResult) *domain.Report {
	evidenceBlock := formatEvidenceBlock(ranked)
	strategyNotes := formatStrategyNotes(retrieval.ExpandedQueries)
	prompt := buildReportPrompt(query, evidenceBlock, strategyNotes)

	report := &domain.Report{
		InvestigatorQuery: query,
		GeneratedAt:       uc.now(),
		EvidenceCount:     len(ranked),
		Strategy:          retrieval.Strategy,
	}

	text, err := uc.chat.Complete(ctx, reportSystemPrompt, prompt, uc.temperature, uc.maxTokens)
	if err != nil {
		slog.Error("report generation failed, returning degraded report", "error", err)
		report.GeneratedText = fmt.Sprintf("LLM report generation error: %v", err)
		report.Degraded = true
		return report
	}

	report.GeneratedText = text
	return report
}
