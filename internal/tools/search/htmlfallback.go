package search

import (
	"strings"

	"golang.org/x/net/html"
)

// stripMarkup removes any HTML markup from a search-result text field,
// keeping only the rendered text. Brave and Serper both sometimes wrap
// query-term matches in a snippet/description/answer field with highlight
// tags (e.g. "<strong>weather</strong> in Boston") rather than returning
// plain text; this is a fallback for that edge case, not the common path,
// so it is only worth paying for when the field actually contains a "<".
func stripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(tokenizer.Text())
			sb.WriteByte(' ')
		}
	}
}
