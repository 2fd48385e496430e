// Package extract turns archived HTML into plain text.
package extract

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// DefaultDropTags are removed with their subtrees before text is collected.
var DefaultDropTags = []string{"script", "style", "nav", "footer", "header", "aside", "noscript"}

// Extractor implements ccindex.TextExtractor on goquery.
type Extractor struct {
	drop string
}

// New returns an Extractor dropping tags, or DefaultDropTags when none are given.
func New(tags ...string) *Extractor {
	if len(tags) == 0 {
		tags = DefaultDropTags
	}
	return &Extractor{drop: strings.Join(tags, ", ")}
}

// Extract decodes body using the declared or sniffed charset and returns its
// visible text, one trimmed non-empty line per text run.
func (e *Extractor) Extract(body []byte, contentType string) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	if !isHTML(contentType, body) {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(reader); err != nil {
			return "", fmt.Errorf("read text: %w", err)
		}
		return normalizeLines(buf.String()), nil
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(e.drop).Remove()

	var sb strings.Builder
	for _, n := range doc.Nodes {
		collectText(n, &sb)
	}
	return normalizeLines(sb.String()), nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteByte('\n')
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func normalizeLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			return mediaType == "text/html" || mediaType == "application/xhtml+xml"
		}
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.Contains(head, []byte("<html"))
}
