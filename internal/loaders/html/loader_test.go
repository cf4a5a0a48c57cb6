package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

func TestExtensions(t *testing.T) {
	assert.Equal(t, []string{".html", ".htm"}, New().Extensions())
}

func TestLoadBytes_Success(t *testing.T) {
	content := `<!DOCTYPE html>
<html>
<head>
  <title>Remote Work &amp; Equipment</title>
  <meta name="author" content="People Team">
  <style>body { color: red; }</style>
</head>
<body>
  <h1>Remote Work</h1>
  <p>Staff may work remotely <b>two</b> days a week.</p>
  <script>alert("x")</script>
  <ul><li>Laptop</li><li>Monitor</li></ul>
</body>
</html>`

	doc, err := New().LoadBytes(context.Background(), "remote.html", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "Remote Work & Equipment", doc.Metadata.Title)
	assert.Equal(t, "People Team", doc.Metadata.Author)
	assert.Equal(t, "text/html", doc.Metadata.MIMEType)

	var texts []string
	for _, el := range doc.Elements {
		texts = append(texts, el.Content)
	}
	assert.Equal(t, []string{
		"Remote Work",
		"Staff may work remotely two days a week.",
		"Laptop",
		"Monitor",
	}, texts)
}

func TestLoadBytes_TitleFallsBackToFilename(t *testing.T) {
	doc, err := New().LoadBytes(context.Background(), "code-of-conduct.htm", []byte("<p>Be kind.</p>"))
	require.NoError(t, err)
	assert.Equal(t, "code of conduct", doc.Metadata.Title)
	require.Len(t, doc.Elements, 1)
	assert.Equal(t, "Be kind.", doc.Elements[0].Content)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"comments removed", "a<!-- hidden -->b", "ab"},
		{"br is a line break", "one<br/>two", "one\ntwo"},
		{"entities decoded", "&lt;tag&gt; &quot;q&quot;", `<tag> "q"`},
		{"spaces collapsed", "a    \t b", "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.input))
		})
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.DocumentLoader = New()
}
