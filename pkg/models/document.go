package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocumentIDLength is the number of token characters used as the short document ID.
const DocumentIDLength = 16

// Sections holds the comparable parts of a patent-style document.
// Every field defaults to the empty string when it could not be located.
type Sections struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Claim1   string `json:"claim_1"`
}

// Missing returns the names of sections that could not be extracted.
func (s Sections) Missing() []string {
	var missing []string
	if s.Title == "" {
		missing = append(missing, "title")
	}
	if s.Abstract == "" {
		missing = append(missing, "abstract")
	}
	if s.Claim1 == "" {
		missing = append(missing, "claim_1")
	}
	return missing
}

// DocumentRecord is a submitted or stored document.
// Token is derived from RawText, so identical text always yields the same identity.
type DocumentRecord struct {
	Token     string    `json:"token"`
	Filename  string    `json:"filename"`
	RawText   string    `json:"raw_text"`
	Sections  Sections  `json:"sections"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// DocumentID returns the short form of the record's identity.
func (d DocumentRecord) DocumentID() string {
	return DocumentIDFromToken(d.Token)
}

// GenerateToken creates a deterministic content fingerprint.
// The token is the full hex-encoded SHA-256 of the raw text.
func GenerateToken(rawText string) string {
	hash := sha256.Sum256([]byte(rawText))
	return hex.EncodeToString(hash[:])
}

// DocumentIDFromToken returns the first DocumentIDLength characters of a token.
func DocumentIDFromToken(token string) string {
	if len(token) <= DocumentIDLength {
		return token
	}
	return token[:DocumentIDLength]
}

// SimilarityResult describes one corpus entry compared against a query.
// Distance is the raw L2 distance (smaller = more similar); Similarity is in [0, 1].
type SimilarityResult struct {
	ID         string  `json:"id"`
	Filename   string  `json:"filename"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity_score"`
}

// Verdict is the outcome of a novelty evaluation.
//
// UniquenessScore is the clamped distance to the closest corpus entry: a larger
// value means the document is further from existing prior art.
type Verdict struct {
	IsUnique        bool               `json:"is_unique"`
	UniquenessScore float64            `json:"uniqueness_score"`
	SimilarityScore float64            `json:"similarity_score"`
	Match           SimilarityResult   `json:"match"`
	Candidates      []SimilarityResult `json:"candidates,omitempty"`
	Judgment        string             `json:"judgment"`
	Token           string             `json:"token"`
	DocumentID      string             `json:"document_id"`
	Diagnostic      string             `json:"diagnostic,omitempty"`
	EvaluatedAt     time.Time          `json:"evaluated_at"`
}
