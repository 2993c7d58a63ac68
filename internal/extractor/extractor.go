// Package extractor pulls the comparable sections (title, abstract, claim 1)
// out of raw patent-style text.
//
// Extraction is heuristic and never fails: sections that cannot be located are
// returned as empty strings and reported through models.Sections.Missing.
package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mfenderov/patent-novelty/pkg/models"
)

// Default window sizes.
const (
	// AbstractLines is the number of lines taken after an "Abstract" heading.
	AbstractLines = 9
	// AbstractChars bounds the raw-text window after an inline "abstract" marker.
	AbstractChars = 492
	// AbstractFallbackStart and AbstractFallbackEnd select the early-line guess (lines 2-6).
	AbstractFallbackStart = 1
	AbstractFallbackEnd   = 6
	// ClaimLines is the number of lines (including the matching one) taken for claim 1.
	ClaimLines = 5
	// ClaimChars bounds the raw-text window after an inline "what is claimed is" marker.
	ClaimChars = 400
	// HeaderFraction is the leading share of the text inspected by LooksLikePatent.
	HeaderFraction = 0.15
)

var (
	titlePattern = regexp.MustCompile(`(?i)united\s+states\s+patent|patent\s+no\.|\bUS\s?\d{7,}`)

	abstractHeading = regexp.MustCompile(`(?i)^abstract$`)
	abstractInline  = regexp.MustCompile(`(?i)abstract`)

	claimPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^1[).:]?\s`),
		regexp.MustCompile(`(?i)^claim\s*1[).:]?\s`),
		regexp.MustCompile(`(?i)^we claim`),
		regexp.MustCompile(`(?i)^what is claimed is`),
	}
	claimInline = regexp.MustCompile(`(?i)what is claimed is`)
)

// Extractor holds the window sizes used while scanning a document.
type Extractor struct {
	AbstractLines int
	AbstractChars int
	ClaimLines    int
	ClaimChars    int
}

// New creates an Extractor with the default windows.
func New() *Extractor {
	return &Extractor{
		AbstractLines: AbstractLines,
		AbstractChars: AbstractChars,
		ClaimLines:    ClaimLines,
		ClaimChars:    ClaimChars,
	}
}

var defaultExtractor = New()

// Extract parses raw text with the default windows.
func Extract(raw string) models.Sections {
	return defaultExtractor.Extract(raw)
}

// Extract parses raw text into its title, abstract and first claim.
func (e *Extractor) Extract(raw string) models.Sections {
	lines := normalizedLines(raw)

	return models.Sections{
		Title:    strings.TrimSpace(e.title(lines)),
		Abstract: strings.TrimSpace(e.abstract(raw, lines)),
		Claim1:   strings.TrimSpace(e.claim(raw, lines)),
	}
}

func (e *Extractor) title(lines []string) string {
	for _, line := range lines {
		if titlePattern.MatchString(line) {
			return line
		}
	}
	return ""
}

// abstract tries, in order: a heading line, an inline marker, then an early-line guess.
func (e *Extractor) abstract(raw string, lines []string) string {
	for i, line := range lines {
		if abstractHeading.MatchString(line) {
			if text := joinWindow(lines, i+1, i+1+e.AbstractLines); text != "" {
				return text
			}
			break
		}
	}

	loc := abstractInline.FindStringIndex(raw)
	if loc == nil {
		return joinWindow(lines, AbstractFallbackStart, AbstractFallbackEnd)
	}
	return byteWindow(raw, loc[1], loc[1]+e.AbstractChars)
}

// claim tries a matching line first, then an inline "what is claimed is" marker.
func (e *Extractor) claim(raw string, lines []string) string {
	for i, line := range lines {
		if isClaimLine(line) {
			return joinWindow(lines, i, i+e.ClaimLines)
		}
	}

	if loc := claimInline.FindStringIndex(raw); loc != nil {
		return byteWindow(raw, loc[0], loc[0]+e.ClaimChars)
	}
	return ""
}

func isClaimLine(line string) bool {
	for _, pattern := range claimPatterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(line), "claim 1")
}

// LooksLikePatent reports whether the leading part of the text carries a patent header.
// It is advisory only.
func LooksLikePatent(raw string) bool {
	head := strings.ToLower(byteWindow(raw, 0, int(float64(len(raw))*HeaderFraction)))
	if strings.Contains(head, "united states patent") ||
		strings.Contains(head, "patent no.") ||
		strings.Contains(head, "pub. no.") {
		return true
	}
	return titlePattern.MatchString(head)
}

// normalizedLines splits on newlines, collapses inner whitespace and drops empty lines.
func normalizedLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, strings.Join(fields, " "))
	}
	return lines
}

func joinWindow(lines []string, start, end int) string {
	if start >= len(lines) {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start:end], " ")
}

// byteWindow slices s[start:end], clamped to the string and moved onto rune boundaries.
func byteWindow(s string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start >= end {
		return ""
	}
	for start < end && !utf8.RuneStart(s[start]) {
		start++
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end--
	}
	if start >= end {
		return ""
	}
	return s[start:end]
}
