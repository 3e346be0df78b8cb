package domain

// RetrievalStrategy selects how many search passes the retriever runs for a
// single query.
type RetrievalStrategy string

const (
	StrategySingleStep RetrievalStrategy = "single-step"
	StrategyMultiStep  RetrievalStrategy = "multi-step"
)

type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "High"
	ConfidenceMedium ConfidenceLabel = "Medium"
	ConfidenceLow    ConfidenceLabel = "Low"
)

// Evidence is one retrieved corpus passage together with its scores.
// VectorScore comes from the similarity search, LLMScore from the reranker's
// relevance judgment (1-10, 0 when the judgment call failed), FinalScore is
// the fused value the final ordering is based on.
type Evidence struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	VectorScore float64         `json:"vector_score"`
	LLMScore    int             `json:"llm_score"`
	FinalScore  float64         `json:"final_score"`
	Confidence  ConfidenceLabel `json:"confidence_label,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// RetrievalResult carries the deduplicated candidate set plus what the
// retriever actually executed. Documents are unique by ID; their order is not
// meaningful until the reranker has run.
type RetrievalResult struct {
	Documents       []Evidence        `json:"documents"`
	Strategy        RetrievalStrategy `json:"strategy"`
	ExpandedQueries []string          `json:"expanded_queries,omitempty"`
}

type GuardDecision struct {
	Admitted bool   `json:"admitted"`
	Reason   string `json:"reason"`
}
