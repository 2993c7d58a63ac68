package models

import "time"

// MatchedPatent identifies the closest corpus document in a ResultRecord.
type MatchedPatent struct {
	Filename        string  `json:"filename"`
	SimilarityScore float64 `json:"similarity_score"`
}

// ResultRecord is the flat artifact returned for every assessment.
type ResultRecord struct {
	DocumentID      string             `json:"document_id"`
	UniquenessScore float64            `json:"uniqueness_score"`
	IsUnique        bool               `json:"is_unique"`
	MatchedPatent   MatchedPatent      `json:"matched_patent"`
	AgentJudgment   string             `json:"agent_judgment"`
	Timestamp       string             `json:"timestamp"`
	Token           string             `json:"token"`
	Diagnostic      string             `json:"diagnostic,omitempty"`
	Candidates      []SimilarityResult `json:"candidates,omitempty"`
}

// TimestampFormat renders ISO-8601 UTC with a trailing Z.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// NewResultRecord builds the output artifact from a verdict.
func NewResultRecord(v Verdict) ResultRecord {
	return ResultRecord{
		DocumentID:      v.DocumentID,
		UniquenessScore: v.UniquenessScore,
		IsUnique:        v.IsUnique,
		MatchedPatent: MatchedPatent{
			Filename:        v.Match.Filename,
			SimilarityScore: v.SimilarityScore,
		},
		AgentJudgment: v.Judgment,
		Timestamp:     v.EvaluatedAt.UTC().Format(TimestampFormat),
		Token:         v.Token,
		Diagnostic:    v.Diagnostic,
		Candidates:    v.Candidates,
	}
}

// ParseTimestamp parses a ResultRecord timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}
