package usecase

import (
	"fmt"
	"strings"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
)

// buildGuardPrompt asks the model to classify a query against the case scope
// and to finish with one of the two sentinel phrases the guard parses.
func buildGuardPrompt(query string) string {
	return fmt.Sprintf(`You are a security system for an AI investigator that only processes queries related to a cryptocurrency exchange hack investigation.

The investigation involves:
- A crypto exchange hack where $5 million was stolen
- Analysis of blockchain transactions and wallet activity
- Tracking how the hacker covered their tracks
- Digital forensics and cryptocurrency security

Determine if the following query is relevant to this investigation:

Query: %s

First, explain why this query is or is not related to the investigation.

Then, provide a final determination using ONLY one of these exact phrases:
- "RELEVANT: This query is about the crypto hack investigation"
- "NON-RELEVANT: This query is not about the crypto hack investigation"`, query)
}

// buildExpansionPrompt requests exactly five alternative search queries as a
// bare JSON array.
func buildExpansionPrompt(query string) string {
	return fmt.Sprintf(`You are a crypto forensic AI assisting an investigation. Generate **5** search queries that cover:
- Direct mentions of the exchange hack
- Blockchain laundering methods used
- Exchanges where stolen funds may have been cashed out

Query: %s

Format output strictly as JSON array: ["Query 1", "Query 2", "Query 3", "Query 4", "Query 5"]`, query)
}

// buildRerankPrompt asks for a bare numeric relevance score for one evidence
// passage.
func buildRerankPrompt(query, documentText string) string {
	return fmt.Sprintf(`You are a criminal investigation AI assistant. Evaluate the relevance (from 1-10 scores) of the given document based on the investigator's query.

INVESTIGATOR'S QUERY:
%s

DOCUMENT:
%s

EVALUATION CRITERIA:
- Direct relevance to the cryptocurrency exchange hack
- Technical details of cryptocurrency transactions
- Suspect identification or related personal information
- Accuracy and clarity of the timeline of events
- Specific methods or tools used by the attacker

SCORE (1-10):
- 1-2: Irrelevant
- 3-4: Slightly relevant
- 5-6: Moderately relevant
- 7-8: Highly relevant
- 9-10: Critically relevant

Provide only the numeric relevance score (1-10).`, query, documentText)
}

// buildReportPrompt constrains the model to ground every claim in the
// numbered evidence block and to flag contradictions explicitly.
func buildReportPrompt(query, evidenceBlock, strategyNotes string) string {
	return fmt.Sprintf(`You are an expert AI investigator assisting with cybercrime investigations, specifically those targeting cryptocurrency exchanges.

OBJECTIVE:
Create a comprehensive and methodical investigative report that addresses the provided query, grounded solely on the presented evidence. The report must be factual, clear, structured, and include precise references to each piece of evidence.

INVESTIGATOR'S QUESTION:
%s

CASE EVIDENCE:
%s

ADDITIONAL STRATEGY DETAILS:
%s

REQUIRED REPORT FORMAT:
1. BRIEF OVERVIEW: Provide a succinct summary that directly responds to the investigator's question.
2. CRITICAL FINDINGS: Clearly enumerate the most important evidence points, referencing each explicitly.
3. DETAILED ANALYSIS: Offer a thorough analysis of each critical finding and its significance for the ongoing investigation.
4. EVIDENCE INTERRELATIONS: Highlight any notable links or discrepancies within the provided evidence.
5. RECOMMENDED ACTIONS: Suggest clear, practical steps for future investigative directions.

REPORTING INSTRUCTIONS:
- Keep the report strictly evidence-based; do not include assumptions or speculative remarks.
- Explicitly identify and discuss conflicting evidence, if any.
- Reference all evidence using the identifiers provided within the context.

INVESTIGATIVE REPORT:`, query, evidenceBlock, strategyNotes)
}

// formatEvidenceBlock numbers each passage in its ranked position so citation
// numbers in the generated report line up with ranking order.
func formatEvidenceBlock(docs []domain.Evidence) string {
	parts := make([]string, 0, len(docs))
	for idx, doc := range docs {
		parts = append(parts, fmt.Sprintf("EVIDENCE #%d - Confidence Score (%s):\n%s", idx+1, doc.Confidence, doc.Text))
	}
	return strings.Join(parts, "\n\n")
}

func formatStrategyNotes(expandedQueries []string) string {
	if len(expandedQueries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Expanded search queries used:\n")
	for i, q := range expandedQueries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + q)
	}
	return b.String()
}
