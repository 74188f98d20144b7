package services

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/modgate/backend/internal/models"
)

const maxMessageRunes = 4000

// SanitizeMessage reduces dashboard-submitted HTML to plain text and enforces
// the message length limit. Plain text passes through trimmed.
func SanitizeMessage(body string) (string, error) {
	text := strings.TrimSpace(body)
	if strings.ContainsAny(text, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + text + "</body>"))
		if err != nil {
			return "", &models.ValidationError{Field: "message", Rule: "unparseable markup"}
		}
		doc.Find("script, style, iframe, object").Remove()
		doc.Find("br").ReplaceWithHtml("\n")
		doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
			s.AppendHtml("\n")
		})
		text = collapseLines(doc.Find("body").Text())
	}

	if text == "" {
		return "", &models.ValidationError{Field: "message", Rule: "must not be empty"}
	}
	if n := len([]rune(text)); n > maxMessageRunes {
		return "", &models.ValidationError{Field: "message", Rule: fmt.Sprintf("must be at most %d characters", maxMessageRunes)}
	}
	return text, nil
}

// collapseLines trims every line and keeps at most one blank line in a row.
func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
