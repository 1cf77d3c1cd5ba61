package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Ellipsis marks a truncated excerpt.
const Ellipsis = "…"

const (
	strippedElements = "script, style, noscript, template, iframe, svg"
	blockElements    = "p, div, br, li, ul, ol, h1, h2, h3, h4, h5, h6, blockquote, pre, tr, td, th, figure, figcaption, section, article"
)

// PlainText strips markup from an HTML fragment and collapses whitespace.
// Script and style blocks are dropped along with their content.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}

	doc.Find(strippedElements).Remove()
	// keep adjacent blocks from running together
	doc.Find(blockElements).AfterHtml(" ")

	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens text to at most max characters without splitting a word.
// A truncated result ends with Ellipsis, which counts toward max.
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	if max <= 0 {
		return ""
	}

	runes := []rune(text)
	keep := max - utf8.RuneCountInString(Ellipsis)
	if keep <= 0 {
		return string(runes[:max])
	}

	cut := keep
	if !unicode.IsSpace(runes[keep]) {
		for cut > 0 && !unicode.IsSpace(runes[cut-1]) {
			cut--
		}
		if cut == 0 {
			// a single word longer than max
			cut = keep
		}
	}

	head := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if head == "" {
		head = string(runes[:keep])
	}
	return head + Ellipsis
}
