package ccindex

import (
	"fmt"
	"regexp"
	"strings"
)

// Predicate decides whether one projected index row belongs to the match set.
type Predicate interface {
	Match(r *IndexRecord) bool
	String() string
}

// URLRegex matches rows whose URL contains a match of a case-insensitive pattern.
type URLRegex struct {
	re *regexp.Regexp
}

// NewURLRegex compiles pattern case-insensitively.
func NewURLRegex(pattern string) (URLRegex, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return URLRegex{}, fmt.Errorf("compile url pattern: %w", err)
	}
	return URLRegex{re: re}, nil
}

// Match implements Predicate.
func (p URLRegex) Match(r *IndexRecord) bool {
	if p.re == nil {
		return true
	}
	return p.re.MatchString(r.URL)
}

func (p URLRegex) String() string {
	if p.re == nil {
		return "url~*"
	}
	return "url~" + strings.TrimPrefix(p.re.String(), "(?i)")
}

// LanguageIn matches rows whose content_languages carries any of Codes. With
// Exact unset a code matches as one element of the comma-joined list;
// with Exact set the whole field must equal a code. Empty Codes matches all.
type LanguageIn struct {
	Codes []string
	Exact bool
}

// Match implements Predicate.
func (p LanguageIn) Match(r *IndexRecord) bool {
	if len(p.Codes) == 0 {
		return true
	}
	field := strings.TrimSpace(r.Languages)
	if field == "" {
		return false
	}
	for _, code := range p.Codes {
		if p.Exact {
			if strings.EqualFold(field, code) {
				return true
			}
			continue
		}
		for _, have := range strings.Split(field, ",") {
			if strings.EqualFold(strings.TrimSpace(have), code) {
				return true
			}
		}
	}
	return false
}

func (p LanguageIn) String() string {
	if len(p.Codes) == 0 {
		return "lang=*"
	}
	op := "∋"
	if p.Exact {
		op = "="
	}
	return "lang" + op + strings.Join(p.Codes, "|")
}

// MIMEEquals matches rows whose content_mime_type equals MIME. Empty MIME matches all.
type MIMEEquals struct {
	MIME string
}

// Match implements Predicate.
func (p MIMEEquals) Match(r *IndexRecord) bool {
	if p.MIME == "" {
		return true
	}
	return r.MIMEType == p.MIME
}

func (p MIMEEquals) String() string {
	if p.MIME == "" {
		return "mime=*"
	}
	return "mime=" + p.MIME
}

// And is the conjunction of its terms; an empty And matches everything.
type And []Predicate

// Match implements Predicate.
func (a And) Match(r *IndexRecord) bool {
	for _, p := range a {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

func (a And) String() string {
	parts := make([]string, 0, len(a))
	for _, p := range a {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, " && ")
}

// FilterSpec is the user-facing description of a query predicate.
type FilterSpec struct {
	URLPattern    string
	Keywords      []string
	Languages     []string
	LanguageExact bool
	MIMEType      string
}

// KeywordPattern joins literal keywords into one alternation.
func KeywordPattern(keywords []string) string {
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(kw))
	}
	return strings.Join(quoted, "|")
}

// Build turns the filter description into a Predicate. Keywords and URLPattern are
// combined as alternatives; empty language and MIME terms are omitted.
func (f FilterSpec) Build() (Predicate, error) {
	var alternatives []string
	if f.URLPattern != "" {
		alternatives = append(alternatives, f.URLPattern)
	}
	if kw := KeywordPattern(f.Keywords); kw != "" {
		alternatives = append(alternatives, kw)
	}

	var terms And
	if len(alternatives) > 0 {
		pattern := alternatives[0]
		if len(alternatives) > 1 {
			pattern = "(?:" + strings.Join(alternatives, ")|(?:") + ")"
		}
		re, err := NewURLRegex(pattern)
		if err != nil {
			return nil, err
		}
		terms = append(terms, re)
	}

	var codes []string
	for _, code := range f.Languages {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) > 0 {
		terms = append(terms, LanguageIn{Codes: codes, Exact: f.LanguageExact})
	}
	if mime := strings.TrimSpace(f.MIMEType); mime != "" {
		terms = append(terms, MIMEEquals{MIME: mime})
	}
	return terms, nil
}
