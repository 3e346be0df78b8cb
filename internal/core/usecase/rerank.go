package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
	"github.com/mkovalev/crypto-investigator/internal/core/ports"
)

const rerankSystemPrompt = "You are a criminal investigation AI assistant."

// FusionParams hold the score-fusion weights and confidence-tier boundaries.
// Weights are normalized at use so only their ratio matters.
type FusionParams struct {
	VectorWeight    float64
	LLMWeight       float64
	HighThreshold   float64
	MediumThreshold float64
}

func DefaultFusionParams() FusionParams {
	return FusionParams{
		VectorWeight:    0.5,
		LLMWeight:       0.5,
		HighThreshold:   0.75,
		MediumThreshold: 0.5,
	}
}

// RerankUseCase re-scores retrieved evidence with a per-item LLM relevance
// judgment, fuses it with the vector similarity, and orders the result
// deterministically. A failed judgment keeps the item at a zero LLM score;
// ranking never drops evidence and never errors.
type RerankUseCase struct {
	chat    ports.ChatModel
	workers int
	params  FusionParams
}

func NewRerankUseCase(chat ports.ChatModel, workers int, params FusionParams) *RerankUseCase {
	if workers <= 0 {
		workers = 4
	}
	if params.VectorWeight <= 0 && params.LLMWeight <= 0 {
		params = DefaultFusionParams()
	}
	return &RerankUseCase{
		chat:    chat,
		workers: workers,
		params:  params,
	}
}

func (uc *RerankUseCase) Rank(ctx context.Context, query string, docs []domain.Evidence) []domain.Evidence {
	if len(docs) == 0 {
		return docs
	}

	ranked := make([]domain.Evidence, len(docs))
	copy(ranked, docs)

	uc.judgeAll(ctx, query, ranked)

	for i := range ranked {
		ranked[i].FinalScore = uc.fuse(ranked[i].VectorScore, ranked[i].LLMScore)
		ranked[i].Confidence = uc.label(ranked[i].FinalScore)
	}

	// FinalScore desc, VectorScore desc, then ID for full determinism.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if ranked[i].VectorScore != ranked[j].VectorScore {
			return ranked[i].VectorScore > ranked[j].VectorScore
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked
}

// judgeAll scores every item with a bounded worker pool so provider rate
// limits are respected.
func (uc *RerankUseCase) judgeAll(ctx context.Context, query string, docs []domain.Evidence) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := uc.workers
	if workers > len(docs) {
		workers = len(docs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				docs[idx].LLMScore = uc.judge(ctx, query, docs[idx])
			}
		}()
	}

	for i := range docs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (uc *RerankUseCase) judge(ctx context.Context, query string, doc domain.Evidence) int {
	content, err := uc.chat.Complete(ctx, rerankSystemPrompt, buildRerankPrompt(query, doc.Text), 0.0, 10)
	if err != nil {
		// Partial degradation beats total failure: keep the item with a
		// neutral judgment.
		slog.Warn("relevance judgment failed, scoring neutral", "evidence_id", doc.ID, "error", err)
		return 0
	}

	score, ok := parseScore(content)
	if !ok {
		slog.Warn("unparseable relevance judgment, scoring neutral", "evidence_id", doc.ID, "reply", content)
		return 0
	}
	return score
}

// fuse combines vector similarity and the LLM judgment on comparable [0,1]
// ranges with normalized weights.
func (uc *RerankUseCase) fuse(vectorScore float64, llmScore int) float64 {
	total := uc.params.VectorWeight + uc.params.LLMWeight
	wVec := uc.params.VectorWeight / total
	wLLM := uc.params.LLMWeight / total
	return wVec*clampUnit(vectorScore) + wLLM*float64(llmScore)/10.0
}

func (uc *RerankUseCase) label(finalScore float64) domain.ConfidenceLabel {
	switch {
	case finalScore >= uc.params.HighThreshold:
		return domain.ConfidenceHigh
	case finalScore >= uc.params.MediumThreshold:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// parseScore extracts the first integer in the reply and clamps it to the
// 1-10 judgment range.
func parseScore(content string) (int, bool) {
	start := -1
	for i, r := range content {
		if unicode.IsDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(content) && content[end] >= '0' && content[end] <= '9' {
		end++
	}

	n, err := strconv.Atoi(strings.TrimSpace(content[start:end]))
	if err != nil {
		return 0, false
	}
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return n, true
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
