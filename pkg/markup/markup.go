// Package markup extracts the few structured hints the backend embeds in
// message content: the <button> caption of component openers and the
// <meta title=".." subtitle=".."> header of info pages.
package markup

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// ErrButtonNotFound is returned when content carries no <button> element.
var ErrButtonNotFound = errors.New("markup: no <button> element")

// Button is a located <button>...</button> element.
type Button struct {
	// Title is the raw text between the start and end tag.
	Title string
	// Start and End delimit the whole element in the source content.
	Start int
	End   int
}

// FindButton locates the first <button> element. The caption runs up to the
// next </button> end tag; an unterminated button counts as absent.
func FindButton(content string) (Button, error) {
	z := html.NewTokenizer(strings.NewReader(content))
	offset := 0
	start, captionStart := -1, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return Button{}, ErrButtonNotFound
			}
			return Button{}, errors.Wrap(z.Err(), "markup: tokenize")
		}
		raw := len(z.Raw())
		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			if start < 0 && string(name) == "button" {
				start = offset
				captionStart = offset + raw
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if start >= 0 && string(name) == "button" {
				return Button{
					Title: content[captionStart:offset],
					Start: start,
					End:   offset + raw,
				}, nil
			}
		case html.ErrorToken, html.TextToken, html.SelfClosingTagToken, html.CommentToken, html.DoctypeToken:
		}
		offset += raw
	}
}

// ButtonTitle returns the caption of the first <button> element, or
// ErrButtonNotFound.
func ButtonTitle(content string) (string, error) {
	b, err := FindButton(content)
	if err != nil {
		return "", err
	}
	return b.Title, nil
}

// SplitButton returns the caption of the first <button> element and the
// content with that element removed. Content without a button is returned
// unchanged with an empty caption.
func SplitButton(content string) (string, string) {
	b, err := FindButton(content)
	if err != nil {
		return "", content
	}
	return b.Title, content[:b.Start] + content[b.End:]
}

// Meta holds the header attributes of an info page.
type Meta struct {
	Title    string
	Subtitle string
}

// ParseMeta reads title and subtitle from the first <meta> element. Escaped
// "\n" sequences in the attributes become line breaks.
func ParseMeta(content string) (Meta, bool) {
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return Meta{}, false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" {
				continue
			}
			var meta Meta
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch string(key) {
				case "title":
					meta.Title = unescapeNewlines(string(val))
				case "subtitle":
					meta.Subtitle = unescapeNewlines(string(val))
				}
			}
			return meta, true
		case html.TextToken, html.EndTagToken, html.CommentToken, html.DoctypeToken:
		}
	}
}

func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
