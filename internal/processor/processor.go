// Package processor turns uploaded bytes into the plain text the extractor scans.
//
// Plain text and markdown pass through unchanged, HTML is converted to
// markdown and flattened, and binary formats such as PDF yield no text.
package processor

import (
	"bytes"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// Kind is the detected format of an upload.
type Kind string

const (
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
	KindHTML     Kind = "html"
	KindBinary   Kind = "binary"
)

// Result is the outcome of Extract.
type Result struct {
	Kind  Kind
	Text  string
	Title string // HTML <title>, if any
}

// Processor converts uploads to text.
type Processor struct{}

// New creates a new Processor.
func New() *Processor {
	return &Processor{}
}

// Extract detects the upload format and converts it to text. It never fails;
// unreadable input produces empty text.
func (p *Processor) Extract(filename, contentType string, data []byte) Result {
	kind := Detect(filename, contentType, data)

	switch kind {
	case KindHTML:
		content := string(data)
		md, err := p.Convert(content)
		if err != nil {
			slog.Warn("failed to convert HTML", "filename", filename, "error", err)
			return Result{Kind: kind}
		}
		return Result{Kind: kind, Text: Flatten(md), Title: p.ExtractTitle(content)}
	case KindBinary:
		slog.Warn("no text extractor for binary document", "filename", filename, "content_type", contentType, "size", len(data))
		return Result{Kind: kind}
	default:
		return Result{Kind: kind, Text: string(data)}
	}
}

// Convert transforms HTML content into Markdown.
func (p *Processor) Convert(htmlContent string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}

	markdown, err := htmltomarkdown.ConvertString(htmlContent)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(markdown), nil
}

// ExtractTitle extracts the <title> content from HTML.
func (p *Processor) ExtractTitle(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var title string
	var findTitle func(*html.Node)
	findTitle = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findTitle(c)
		}
	}
	findTitle(doc)

	return strings.TrimSpace(title)
}

var (
	headingMarker = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	listMarker    = regexp.MustCompile(`(?m)^[ \t]*[\-\*\+][ \t]+`)
	mdLink        = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	emphasis      = regexp.MustCompile(`\*\*|__|` + "`")
	escaped       = regexp.MustCompile(`\\([\\*_#+\-.!\[\]()])`)
)

// Flatten strips markdown syntax that would hide section headings and claim
// numbers from line-based matching.
func Flatten(md string) string {
	text := mdLink.ReplaceAllString(md, "$1")
	text = headingMarker.ReplaceAllString(text, "")
	text = listMarker.ReplaceAllString(text, "")
	text = emphasis.ReplaceAllString(text, "")
	text = escaped.ReplaceAllString(text, "$1")
	return text
}

// Detect determines the upload format. It checks, in order, the content type,
// the filename extension, then the bytes themselves.
func Detect(filename, contentType string, data []byte) Kind {
	if kind, ok := kindFromContentType(contentType); ok {
		return kind
	}
	if kind, ok := kindFromName(filename); ok {
		return kind
	}
	return sniff(data)
}

func kindFromContentType(contentType string) (Kind, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case ct == "":
		return "", false
	case IsMarkdownContentType(ct):
		return KindMarkdown, true
	case strings.HasPrefix(ct, "text/html"), strings.HasPrefix(ct, "application/xhtml"):
		return KindHTML, true
	case strings.HasPrefix(ct, "text/plain"):
		return KindText, true
	case strings.HasPrefix(ct, "application/pdf"),
		strings.HasPrefix(ct, "application/msword"),
		strings.HasPrefix(ct, "application/vnd."),
		strings.HasPrefix(ct, "image/"):
		return KindBinary, true
	default:
		return "", false
	}
}

func kindFromName(filename string) (Kind, bool) {
	if IsMarkdownName(filename) {
		return KindMarkdown, true
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".html", ".htm", ".xhtml":
		return KindHTML, true
	case ".txt", ".text":
		return KindText, true
	case ".pdf", ".doc", ".docx", ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return KindBinary, true
	default:
		return "", false
	}
}

func sniff(data []byte) Kind {
	if bytes.HasPrefix(data, []byte("%PDF-")) || bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return KindBinary
	}
	content := strings.TrimSpace(string(data))
	if looksLikeHTML(content) {
		return KindHTML
	}
	if hasMarkdownPatterns(content) {
		return KindMarkdown
	}
	return KindText
}

// IsMarkdownContentType checks if the Content-Type header indicates markdown.
func IsMarkdownContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/markdown") ||
		strings.HasPrefix(ct, "text/x-markdown")
}

// IsMarkdownName checks if a filename or URL indicates a markdown file.
func IsMarkdownName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".markdown")
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.HasPrefix(lower, "<head") ||
		strings.HasPrefix(lower, "<body")
}

var (
	mdHeading  = regexp.MustCompile(`^#{1,6}\s+\S`)
	mdListItem = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	mdLinkRef  = regexp.MustCompile(`\[.+?\]\(.+?\)`)
)

func hasMarkdownPatterns(content string) bool {
	return mdHeading.MatchString(content) ||
		mdListItem.MatchString(content) ||
		mdLinkRef.MatchString(content)
}
