package source

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/phrazzld/mailroom/internal/domain"
)

var htmlTag = regexp.MustCompile(`(?i)<(html|body|p|div|br|table|span|a|b|strong|em|ul|ol|li)\b[^>]*>`)

// converter is safe for concurrent use once built.
var converter = md.NewConverter("", true, nil)

// LooksLikeHTML reports whether body carries HTML markup.
func LooksLikeHTML(body string) bool {
	return htmlTag.MatchString(body)
}

// NormalizeBody converts HTML bodies to Markdown so prompts and reports see
// plain text. Other bodies are returned trimmed.
func NormalizeBody(body string) (string, error) {
	if !LooksLikeHTML(body) {
		return strings.TrimSpace(body), nil
	}
	markdown, err := converter.ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("converting html body: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}

// Normalize validates item and normalizes its body.
func Normalize(item domain.Item) (domain.Item, error) {
	body, err := NormalizeBody(item.Body)
	if err != nil {
		return domain.Item{}, fmt.Errorf("item %s: %w", item.ID, err)
	}
	item.Body = body
	item.ID = strings.TrimSpace(item.ID)
	if err := item.Validate(); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}
