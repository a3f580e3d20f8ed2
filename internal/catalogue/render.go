package catalogue

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"mova-bot/pkg/mova"
)

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// RenderExample prepares an example for display.
func RenderExample(example mova.Example) mova.RenderedExample {
	return mova.RenderedExample{
		Title: strings.TrimSpace(example.Title),
		Body:  StripMarkup(example.Content),
		Image: strings.TrimSpace(example.Image),
	}
}

// StripMarkup returns the visible text of an HTML fragment. Entities are
// decoded, line breaks and block boundaries become newlines, and the result
// is trimmed.
func StripMarkup(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))

	var builder strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return normalizeWhitespace(builder.String())
		case html.TextToken:
			if skipDepth == 0 {
				builder.Write(tokenizer.Text())
			}
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := atom.Lookup(name)
			switch {
			case tag == atom.Script || tag == atom.Style:
				skipDepth++
			case tag == atom.Br:
				builder.WriteByte('\n')
			case tag == atom.Li:
				builder.WriteString("\n• ")
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if atom.Lookup(name) == atom.Br {
				builder.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := atom.Lookup(name)
			switch {
			case tag == atom.Script || tag == atom.Style:
				if skipDepth > 0 {
					skipDepth--
				}
			case isBlock(tag):
				builder.WriteByte('\n')
			}
		}
	}
}

func isBlock(tag atom.Atom) bool {
	switch tag {
	case atom.P, atom.Div, atom.Ul, atom.Ol, atom.Blockquote, atom.Table, atom.Tr,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	default:
		return false
	}
}

func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = trailingSpace.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
