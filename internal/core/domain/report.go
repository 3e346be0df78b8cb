package domain

import "time"

// Report is the synthesized investigation document. It is immutable once the
// synthesizer returns it; UserID is the only field a caller attaches
// afterwards, for storage tracking.
type Report struct {
	GeneratedText     string            `json:"generated_report"`
	InvestigatorQuery string            `json:"investigator_query"`
	GeneratedAt       time.Time         `json:"generation_time"`
	EvidenceCount     int               `json:"number_of_evidences"`
	Strategy          RetrievalStrategy `json:"retrieval_strategy"`
	Degraded          bool              `json:"error,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
}

// StoredReport describes a report object persisted in the report store,
// addressable through a presigned URL.
type StoredReport struct {
	Key          string    `json:"file_path"`
	URL          string    `json:"url"`
	Size         int64     `json:"size,omitempty"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

// Investigation is the outcome of one full pipeline invocation. Retrieval and
// Report are nil when the guard rejected the query; Report is nil when
// retrieval found nothing.
type Investigation struct {
	Query     string           `json:"query"`
	Guard     GuardDecision    `json:"guard"`
	Retrieval *RetrievalResult `json:"retrieval,omitempty"`
	Report    *Report          `json:"report,omitempty"`
	Message   string           `json:"message,omitempty"`
}
