package service

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// MinTextLength is the fewest non-space characters an OCR result needs to be analyzed.
const MinTextLength = 20

// Document is an uploaded PDF handed to OCR. URL is a presigned link to the
// same bytes and is empty when object storage is disabled.
type Document struct {
	Name string
	Data []byte
	URL  string
}

// OCR turns a PDF into plain text.
type OCR interface {
	Name() string
	ExtractText(ctx context.Context, doc Document) (string, error)
}

var (
	nonASCII       = regexp.MustCompile(`[^\x00-\x7F]+`)
	horizontalRuns = regexp.MustCompile(`[ \t]+`)
	blankLineRuns  = regexp.MustCompile(`\n{3,}`)
)

// CleanText replaces non-ASCII runs with a space, collapses horizontal
// whitespace and caps consecutive blank lines at one.
func CleanText(text string) string {
	text = nonASCII.ReplaceAllString(text, " ")
	text = horizontalRuns.ReplaceAllString(text, " ")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// HandleLayout trims every line and sets short all-caps headings apart with a blank line.
func HandleLayout(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if isHeading(line) {
			out = append(out, "\n"+line)
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isHeading(line string) bool {
	if len(line) >= 60 {
		return false
	}
	hasUpper := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasUpper = true
		}
	}
	return hasUpper
}

// PostProcess applies CleanText and HandleLayout and rejects results too short to analyze.
func PostProcess(raw string) (string, error) {
	text := HandleLayout(CleanText(raw))
	if countNonSpace(text) < MinTextLength {
		return "", ErrTextTooShort
	}
	return text, nil
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
