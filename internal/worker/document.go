package worker

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/JakeFAU/ccslice/internal/ccindex"
)

// DocumentContentType is the media type of written documents.
const DocumentContentType = "text/plain; charset=utf-8"

const separatorWidth = 60

// DocumentName returns the file name of the document at selection position seq.
func DocumentName(seq int) string {
	return fmt.Sprintf("doc_%04d.txt", seq)
}

// DocumentPath joins prefix and the document name.
func DocumentPath(prefix string, seq int) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return DocumentName(seq)
	}
	return path.Join(prefix, DocumentName(seq))
}

// RenderDocument writes the metadata header block followed by the text.
func RenderDocument(doc ccindex.ExtractedDocument) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "URL: %s\n", doc.URL)
	fmt.Fprintf(&b, "Domain: %s\n", doc.Domain)
	fmt.Fprintf(&b, "Language: %s\n", doc.Languages)
	fetchTime := ""
	if !doc.FetchTime.IsZero() {
		fetchTime = doc.FetchTime.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "Fetch Time: %s\n", fetchTime)
	b.WriteString(strings.Repeat("=", separatorWidth))
	b.WriteString("\n\n")
	b.WriteString(doc.Text)
	return b.Bytes()
}
