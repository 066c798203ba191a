package richtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sel(block, from, to int) Selection {
	return Selection{From: Pos{Block: block, Offset: from}, To: Pos{Block: block, Offset: to}}
}

func TestParseAndRender(t *testing.T) {
	doc, err := Parse(`<p>Hello <b>world</b></p><h2>Title</h2>`)
	require.NoError(t, err)

	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, Paragraph, doc.Blocks[0].Kind)
	assert.Equal(t, []Run{{Text: "Hello "}, {Text: "world", Bold: true}}, doc.Blocks[0].Runs)
	assert.Equal(t, Heading, doc.Blocks[1].Kind)
	assert.Equal(t, 2, doc.Blocks[1].Level)

	assert.Equal(t, `<p>Hello <strong>world</strong></p><h2>Title</h2>`, Render(doc))
}

func TestParseEmpty(t *testing.T) {
	doc, err := Parse("")
	require.NoError(t, err)

	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, `<p></p>`, Render(doc))
}

func TestSanitizeStripsScripts(t *testing.T) {
	out := Sanitize(`<p onclick="x()">hi</p><script>alert(1)</script><a href="javascript:alert(1)">bad</a>`)

	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript")
	assert.Contains(t, out, "<p>hi</p>")
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Hello\nBig world", PlainText(`<h2>Hello</h2><p>Big <b>world</b></p>`))
}

func TestEditor_ToggleBold(t *testing.T) {
	var changes []string
	e, err := NewEditor(`<p>Hello world</p>`, func(html string) { changes = append(changes, html) })
	require.NoError(t, err)

	e.Select(sel(0, 6, 11))
	e.ToggleBold()
	assert.Equal(t, `<p>Hello <strong>world</strong></p>`, e.HTML())
	assert.True(t, e.IsActive("bold"))

	e.ToggleBold()
	assert.Equal(t, `<p>Hello world</p>`, e.HTML())
	assert.Equal(t, []string{`<p>Hello <strong>world</strong></p>`, `<p>Hello world</p>`}, changes)
}

func TestEditor_ToggleBoldMixedSelectionSetsAll(t *testing.T) {
	e, err := NewEditor(`<p>Hello <strong>world</strong></p>`, nil)
	require.NoError(t, err)

	e.Select(sel(0, 0, 11))
	e.ToggleBold()

	assert.Equal(t, `<p><strong>Hello world</strong></p>`, e.HTML())
}

func TestEditor_ToggleItalicInsideBold(t *testing.T) {
	e, err := NewEditor(`<p><strong>Hello</strong></p>`, nil)
	require.NoError(t, err)

	e.Select(sel(0, 0, 5))
	e.ToggleItalic()

	assert.Equal(t, `<p><strong><em>Hello</em></strong></p>`, e.HTML())
}

func TestEditor_CollapsedSelectionDoesNotFormat(t *testing.T) {
	calls := 0
	e, err := NewEditor(`<p>Hello</p>`, func(string) { calls++ })
	require.NoError(t, err)

	e.Select(Caret(0, 2))
	e.ToggleBold()

	assert.Equal(t, 0, calls)
	assert.Equal(t, `<p>Hello</p>`, e.HTML())
}

func TestEditor_ToggleHeading(t *testing.T) {
	e, err := NewEditor(`<p>Hello world</p>`, nil)
	require.NoError(t, err)

	e.Select(Caret(0, 3))
	e.ToggleHeading(2)
	assert.Equal(t, `<h2>Hello world</h2>`, e.HTML())
	assert.True(t, e.IsActive("heading"))

	e.ToggleHeading(2)
	assert.Equal(t, `<p>Hello world</p>`, e.HTML())
}

func TestEditor_SetAndClearLink(t *testing.T) {
	e, err := NewEditor(`<p>Hello world</p>`, nil)
	require.NoError(t, err)

	e.Select(sel(0, 0, 5))
	require.NoError(t, e.SetLink("https://example.com"))
	assert.Equal(t, `<p><a href="https://example.com">Hello</a> world</p>`, e.HTML())

	// курсор внутри ссылки: пустой адрес снимает ссылку целиком
	e.Select(Caret(0, 2))
	assert.Equal(t, "https://example.com", e.LinkAt())
	require.NoError(t, e.SetLink(""))
	assert.Equal(t, `<p>Hello world</p>`, e.HTML())
}

func TestEditor_SetLinkReplacesWholeLink(t *testing.T) {
	e, err := NewEditor(`<p><a href="https://old.example">Hello</a> world</p>`, nil)
	require.NoError(t, err)

	e.Select(Caret(0, 3))
	require.NoError(t, e.SetLink("https://new.example"))

	assert.Equal(t, `<p><a href="https://new.example">Hello</a> world</p>`, e.HTML())
}

func TestEditor_SetLinkAdjacentSelectionNotExtended(t *testing.T) {
	e, err := NewEditor(`<p>ab<a href="https://example.com">cd</a></p>`, nil)
	require.NoError(t, err)

	e.Select(sel(0, 0, 2))
	require.NoError(t, e.SetLink("https://other.example"))

	assert.Equal(t, `<p><a href="https://other.example">ab</a><a href="https://example.com">cd</a></p>`, e.HTML())
}

func TestEditor_SetLinkRejectsScripts(t *testing.T) {
	e, err := NewEditor(`<p>Hello</p>`, nil)
	require.NoError(t, err)

	e.Select(sel(0, 0, 5))
	assert.ErrorIs(t, e.SetLink("javascript:alert(1)"), ErrInvalidURL)
}

func TestEditor_InsertImage(t *testing.T) {
	calls := 0
	e, err := NewEditor(`<p>Hello</p>`, func(string) { calls++ })
	require.NoError(t, err)

	e.Select(Caret(0, 5))
	assert.False(t, CanInsertImage("  "))
	assert.ErrorIs(t, e.InsertImage(""), ErrEmptyImageURL)
	assert.Equal(t, 0, calls)

	require.NoError(t, e.InsertImage("/media/images/cat.png"))
	assert.Equal(t, 1, calls)
	assert.Contains(t, e.HTML(), `<p>Hello<img src="/media/images/cat.png"`)
	assert.Equal(t, Caret(0, 6), e.Selection())
}

func TestEditor_SelectClamps(t *testing.T) {
	e, err := NewEditor(`<p>Hello</p>`, nil)
	require.NoError(t, err)

	e.Select(Selection{From: Pos{Block: 3, Offset: 99}, To: Pos{Block: -1, Offset: -5}})

	assert.Equal(t, sel(0, 0, 5), e.Selection())
}

func TestApply(t *testing.T) {
	out, err := Apply(`<p>Hello world</p>`, Command{Name: "heading", Selection: Caret(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, `<h2>Hello world</h2>`, out)

	_, err = Apply(`<p>Hello</p>`, Command{Name: "image"})
	assert.ErrorIs(t, err, ErrEmptyImageURL)

	_, err = Apply(`<p>Hello</p>`, Command{Name: "strike"})
	assert.Error(t, err)
}
