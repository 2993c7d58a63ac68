// Package judgment builds the examiner prompt that compares a submission to its
// closest prior-art match and interprets the model's reply.
package judgment

import (
	"context"
	"fmt"
	"strings"

	"github.com/mfenderov/patent-novelty/internal/llm"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

const (
	// MaxFieldChars caps every section placed in the prompt, counted in characters.
	MaxFieldChars = 1200
	// MaxTokens is the default cap on the length of the generated judgment.
	MaxTokens = 150
)

const promptTemplate = `You are a patent examiner comparing two patent documents.
The semantic similarity score between these documents is: %.2f
A higher score indicates a high degree of textual similarity.

Please determine whether the test document appears to be:
(a) Clearly novel
(b) An obvious modification
(c) Possibly plagiarized

Use the titles, abstracts, and primary claims to support your conclusion.

Test Patent:
Title: %s
Abstract: %s
Claim 1: %s

Known Prior Art:
Title: %s
Abstract: %s
Claim 1: %s

Provide the most appropriate option and explain briefly.
`

// FormatPrompt renders the comparison prompt. Missing sections render as empty fields.
func FormatPrompt(query, match models.Sections, similarity float64) string {
	return fmt.Sprintf(promptTemplate,
		similarity,
		Truncate(query.Title, MaxFieldChars),
		Truncate(query.Abstract, MaxFieldChars),
		Truncate(query.Claim1, MaxFieldChars),
		Truncate(match.Title, MaxFieldChars),
		Truncate(match.Abstract, MaxFieldChars),
		Truncate(match.Claim1, MaxFieldChars),
	)
}

// ParseResponse turns a raw completion into the stored judgment. The reply is
// free text; no label is parsed out of it.
func ParseResponse(raw string) string {
	return strings.TrimSpace(raw)
}

// Judge formats the prompt, runs it through gen and returns the trimmed reply.
// maxTokens <= 0 uses MaxTokens.
func Judge(ctx context.Context, gen llm.Generator, query, match models.Sections, similarity float64, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = MaxTokens
	}
	prompt := FormatPrompt(query, match, similarity)

	raw, err := gen.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return "", fmt.Errorf("failed to generate judgment: %w", err)
	}
	return ParseResponse(raw), nil
}

// Truncate keeps at most n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
