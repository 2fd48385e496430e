package ccindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLRegexCaseInsensitive(t *testing.T) {
	t.Parallel()

	pred, err := NewURLRegex("immigra")
	require.NoError(t, err)

	require.True(t, pred.Match(&IndexRecord{URL: "https://news.example.com/IMMIGRATION/policy"}))
	require.False(t, pred.Match(&IndexRecord{URL: "https://news.example.com/sports"}))
	require.Equal(t, "url~immigra", pred.String())
}

func TestURLRegexInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := NewURLRegex("(unclosed")
	require.Error(t, err)
	require.Contains(t, err.Error(), "compile url pattern")
}

func TestLanguageInContainsMatchesTokens(t *testing.T) {
	t.Parallel()

	pred := LanguageIn{Codes: []string{"eng"}}

	tests := []struct {
		name  string
		field string
		want  bool
	}{
		{name: "single", field: "eng", want: true},
		{name: "second of list", field: "spa,eng", want: true},
		{name: "upper case", field: "ENG", want: true},
		{name: "spaces around", field: "fra, eng ", want: true},
		{name: "longer token", field: "engx", want: false},
		{name: "other language", field: "deu", want: false},
		{name: "empty", field: "", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, pred.Match(&IndexRecord{Languages: tt.field}))
		})
	}
}

func TestLanguageInExact(t *testing.T) {
	t.Parallel()

	pred := LanguageIn{Codes: []string{"eng"}, Exact: true}
	require.True(t, pred.Match(&IndexRecord{Languages: "eng"}))
	require.False(t, pred.Match(&IndexRecord{Languages: "eng,spa"}))
	require.Equal(t, "lang=eng", pred.String())
}

func TestMIMEEquals(t *testing.T) {
	t.Parallel()

	pred := MIMEEquals{MIME: "text/html"}
	require.True(t, pred.Match(&IndexRecord{MIMEType: "text/html"}))
	require.False(t, pred.Match(&IndexRecord{MIMEType: "application/pdf"}))
}

func TestEmptyTermsAreSuperset(t *testing.T) {
	t.Parallel()

	rows := []IndexRecord{
		{URL: "https://a.example/immigration", Languages: "eng", MIMEType: "text/html"},
		{URL: "https://b.example/immigration", Languages: "spa", MIMEType: "text/html"},
		{URL: "https://c.example/immigration", Languages: "", MIMEType: "application/pdf"},
		{URL: "https://d.example/other", Languages: "eng", MIMEType: "text/html"},
	}

	narrow, err := FilterSpec{
		Keywords:  []string{"immigration"},
		Languages: []string{"eng"},
		MIMEType:  "text/html",
	}.Build()
	require.NoError(t, err)
	wide, err := FilterSpec{Keywords: []string{"immigration"}}.Build()
	require.NoError(t, err)

	var narrowHits, wideHits []string
	for i := range rows {
		if narrow.Match(&rows[i]) {
			narrowHits = append(narrowHits, rows[i].URL)
		}
		if wide.Match(&rows[i]) {
			wideHits = append(wideHits, rows[i].URL)
		}
	}

	require.Equal(t, []string{"https://a.example/immigration"}, narrowHits)
	require.Len(t, wideHits, 3)
	for _, hit := range narrowHits {
		require.Contains(t, wideHits, hit)
	}
}

func TestFilterSpecBuildCombinesPatternAndKeywords(t *testing.T) {
	t.Parallel()

	pred, err := FilterSpec{
		URLPattern: `\.gov/`,
		Keywords:   []string{"c++", " ", "visa"},
	}.Build()
	require.NoError(t, err)

	require.True(t, pred.Match(&IndexRecord{URL: "https://uscis.gov/forms"}))
	require.True(t, pred.Match(&IndexRecord{URL: "https://example.com/C++/guide"}))
	require.True(t, pred.Match(&IndexRecord{URL: "https://example.com/VISA"}))
	require.False(t, pred.Match(&IndexRecord{URL: "https://example.com/cpp"}))
}

func TestFilterSpecEmptyMatchesEverything(t *testing.T) {
	t.Parallel()

	pred, err := FilterSpec{}.Build()
	require.NoError(t, err)
	require.True(t, pred.Match(&IndexRecord{}))
	require.Equal(t, "", pred.String())
}

func TestKeywordPatternQuotesMeta(t *testing.T) {
	t.Parallel()

	require.Equal(t, `a\.b|c\+\+`, KeywordPattern([]string{"a.b", "", "c++"}))
	require.Equal(t, "", KeywordPattern(nil))
}
