package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PlainText(t *testing.T) {
	doc, err := Extract("/notes/red-fox_facts.txt", []byte("red fox jumps\r\nover the fence"))
	require.NoError(t, err)

	assert.Equal(t, FormatPlain, doc.Format)
	assert.Equal(t, "red fox facts", doc.Title)
	assert.Equal(t, "red fox jumps\nover the fence", doc.Text)
}

func TestExtract_Markdown(t *testing.T) {
	raw := "---\ntags: [animals]\n---\n# Foxes\n\nThe **red fox** jumps over [the fence](http://x).\n\n- quick\n- brown\n\n```go\nfmt.Println(\"fox\")\n```\n"

	doc, err := Extract("animals/foxes.md", []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, FormatMarkdown, doc.Format)
	assert.Equal(t, "Foxes", doc.Title)
	assert.Contains(t, doc.Text, "The red fox jumps over the fence.")
	assert.Contains(t, doc.Text, "quick\nbrown")
	assert.Contains(t, doc.Text, `fmt.Println("fox")`)
	assert.NotContains(t, doc.Text, "```")
	assert.NotContains(t, doc.Text, "tags:")
	assert.NotContains(t, doc.Text, "http://x")
}

func TestExtract_MarkdownWithoutHeadingFallsBackToFilename(t *testing.T) {
	doc, err := Extract("daily_log.md", []byte("just words"))
	require.NoError(t, err)
	assert.Equal(t, "daily log", doc.Title)
}

func TestExtract_HTML(t *testing.T) {
	raw := `<html><head><title>Dog &amp; Fox</title><style>p{}</style></head>
<body><script>var x = 1;</script><h1>Lazy dog</h1><p>The dog   sleeps.</p><!-- hidden --></body></html>`

	doc, err := Extract("page.HTML", []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, FormatHTML, doc.Format)
	assert.Equal(t, "Dog & Fox", doc.Title)
	assert.Equal(t, "Lazy dog\nThe dog sleeps.", doc.Text)
}

func TestExtract_InvalidUTF8IsRepaired(t *testing.T) {
	doc, err := Extract("x.txt", []byte{'o', 'k', 0xff, '!'})
	require.NoError(t, err)
	assert.Equal(t, "ok�!", doc.Text)
}

func TestExtract_BinaryTextFileHasNoText(t *testing.T) {
	doc, err := Extract("logo.txt", []byte{0x89, 'P', 'N', 'G', 0x00, 0x01})

	require.NoError(t, err)
	assert.Equal(t, "logo.txt", doc.Title)
	assert.Empty(t, doc.Text)
}

func TestIsBinary(t *testing.T) {
	assert.True(t, IsBinary([]byte{0x89, 'P', 'N', 'G', 0x00, 0x01}))
	assert.False(t, IsBinary([]byte("plain text")))
}
