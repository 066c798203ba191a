package richtext

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// policy разрешает только то, что умеет производить редактор, плюс списки и цитаты из старого контента
var policy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"strong", "b", "em", "i", "ul", "ol", "li", "blockquote", "pre", "code")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	return p
}()

// Sanitize вычищает из HTML всё, кроме разрешённой разметки
func Sanitize(src string) string {
	return policy.Sanitize(src)
}

// PlainText возвращает текст документа без разметки, блоки разделены переводом строки
func PlainText(src string) string {
	doc, err := Parse(src)
	if err != nil {
		return html.UnescapeString(src)
	}
	var sb strings.Builder
	for i, b := range doc.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for _, r := range b.Runs {
			sb.WriteString(r.Text)
		}
	}
	return sb.String()
}
