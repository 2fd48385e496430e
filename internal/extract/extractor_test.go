package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractDropsBoilerplate(t *testing.T) {
	t.Parallel()

	page := `<!DOCTYPE html>
<html>
<head><title>Border policy</title><style>p { color: red }</style><script>var x = 1;</script></head>
<body>
  <header>Site header</header>
  <nav><a href="/">Home</a></nav>
  <main>
    <h1>  Immigration update  </h1>
    <p>New visa rules take effect.</p>
    <!-- hidden comment -->
    <p>   </p>
  </main>
  <aside>Related links</aside>
  <noscript>Enable JS</noscript>
  <footer>Copyright</footer>
</body>
</html>`

	text, err := New().Extract([]byte(page), "text/html; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "Border policy\nImmigration update\nNew visa rules take effect.", text)
}

func TestExtractDecodesDeclaredCharset(t *testing.T) {
	t.Parallel()

	// "Café" in ISO-8859-1.
	body := []byte("<html><body><p>Caf\xe9</p></body></html>")
	text, err := New().Extract(body, "text/html; charset=iso-8859-1")
	require.NoError(t, err)
	require.Equal(t, "Café", text)
}

func TestExtractSniffsMetaCharset(t *testing.T) {
	t.Parallel()

	body := []byte("<html><head><meta charset=\"windows-1252\"></head><body><p>na\xefve</p></body></html>")
	text, err := New().Extract(body, "")
	require.NoError(t, err)
	require.Equal(t, "naïve", text)
}

func TestExtractPlainText(t *testing.T) {
	t.Parallel()

	text, err := New().Extract([]byte("  line one \n\n\tline two\n"), "text/plain")
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", text)
}

func TestExtractCustomDropTags(t *testing.T) {
	t.Parallel()

	text, err := New("p").Extract([]byte("<html><body><p>gone</p><div>kept</div></body></html>"), "text/html")
	require.NoError(t, err)
	require.Equal(t, "kept", text)
}

func TestExtractEmptyDocument(t *testing.T) {
	t.Parallel()

	text, err := New().Extract([]byte("<html><body><script>only()</script></body></html>"), "text/html")
	require.NoError(t, err)
	require.Empty(t, text)
}
