// Package extraction turns raw payment-notification email bodies into
// structured transactions by prompting a language model and validating what
// comes back.
package extraction

import (
	"strings"

	"golang.org/x/net/html"
)

// fallbackLimit bounds the raw prefix returned when HTML cleanup fails.
const fallbackLimit = 1000

// ToPlainText strips markup from an email body, producing text suitable for
// prompting. Style and script blocks are dropped with their content,
// remaining tags are removed, and whitespace runs collapse to single spaces.
// It never fails: any internal problem degrades to a truncated raw prefix.
func ToPlainText(raw string) (out string) {
	defer func() {
		if recover() != nil {
			out = truncateRunes(raw, fallbackLimit)
		}
	}()

	if !strings.ContainsRune(raw, '<') {
		return collapseWhitespace(raw)
	}

	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed markup; either way return what we have.
			return collapseWhitespace(b.String())
		case html.StartTagToken:
			if name, _ := z.TagName(); isSkippedTag(name) {
				skipDepth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isSkippedTag(name) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isSkippedTag(name []byte) bool {
	s := string(name)
	return s == "style" || s == "script"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
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
