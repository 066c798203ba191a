// Package richtext - структурированный документ, его разбор из HTML и сериализация обратно.
package richtext

import (
	"bytes"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type BlockKind int

const (
	Paragraph BlockKind = iota
	Heading
)

// Run - фрагмент текста с одинаковым оформлением.
// Если задан Image, run - это встроенная картинка и занимает одну позицию.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
	Link   string
	Image  string
}

func (r Run) length() int {
	if r.Image != "" {
		return 1
	}
	return utf8.RuneCountInString(r.Text)
}

func (r Run) sameMarks(o Run) bool {
	return r.Image == "" && o.Image == "" && r.Bold == o.Bold && r.Italic == o.Italic && r.Link == o.Link
}

// Block - абзац или заголовок
type Block struct {
	Kind  BlockKind
	Level int
	Runs  []Run
}

// Len - длина блока в позициях (руны текста плюс картинки)
func (b *Block) Len() int {
	n := 0
	for _, r := range b.Runs {
		n += r.length()
	}
	return n
}

// splitAt разрезает run на позиции offset и возвращает индекс run, начинающегося с неё
func (b *Block) splitAt(offset int) int {
	at := 0
	for i, r := range b.Runs {
		if offset == at {
			return i
		}
		n := r.length()
		if offset < at+n {
			runes := []rune(r.Text)
			left, right := r, r
			left.Text = string(runes[:offset-at])
			right.Text = string(runes[offset-at:])
			b.Runs = slices.Replace(b.Runs, i, i+1, left, right)
			return i + 1
		}
		at += n
	}
	return len(b.Runs)
}

// normalize склеивает соседние runs с одинаковым оформлением и убирает пустые
func (b *Block) normalize() {
	out := b.Runs[:0]
	for _, r := range b.Runs {
		if r.Image == "" && r.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].sameMarks(r) {
			out[n-1].Text += r.Text
			continue
		}
		out = append(out, r)
	}
	b.Runs = out
}

func (b Block) clone() Block {
	b.Runs = slices.Clone(b.Runs)
	return b
}

// Document - последовательность блоков
type Document struct {
	Blocks []Block
}

func (d *Document) clone() *Document {
	c := &Document{Blocks: make([]Block, len(d.Blocks))}
	for i, b := range d.Blocks {
		c.Blocks[i] = b.clone()
	}
	return c
}

// Parse разбирает HTML-фрагмент в документ. Неизвестные теги разворачиваются в свой текст.
func Parse(src string) (*Document, error) {
	nodes, err := html.ParseFragment(strings.NewReader(src), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, err
	}

	p := &parser{doc: &Document{}}
	for _, n := range nodes {
		p.walk(n, Run{})
	}
	p.closeBlock()
	if len(p.doc.Blocks) == 0 {
		p.doc.Blocks = append(p.doc.Blocks, Block{Kind: Paragraph})
	}
	return p.doc, nil
}

type parser struct {
	doc *Document
	cur *Block
}

func (p *parser) openBlock(kind BlockKind, level int) {
	p.closeBlock()
	p.cur = &Block{Kind: kind, Level: level}
}

func (p *parser) closeBlock() {
	if p.cur == nil {
		return
	}
	p.cur.normalize()
	if len(p.cur.Runs) > 0 {
		p.doc.Blocks = append(p.doc.Blocks, *p.cur)
	}
	p.cur = nil
}

func (p *parser) appendRun(r Run) {
	if p.cur == nil {
		if r.Image == "" && strings.TrimSpace(r.Text) == "" {
			return
		}
		p.cur = &Block{Kind: Paragraph}
	}
	p.cur.Runs = append(p.cur.Runs, r)
}

func (p *parser) walkChildren(n *html.Node, marks Run) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, marks)
	}
}

func (p *parser) walk(n *html.Node, marks Run) {
	switch n.Type {
	case html.TextNode:
		r := marks
		r.Text = n.Data
		p.appendRun(r)
		return
	case html.ElementNode:
	default:
		p.walkChildren(n, marks)
		return
	}

	switch n.DataAtom {
	case atom.P, atom.Div, atom.Li, atom.Blockquote, atom.Pre:
		p.openBlock(Paragraph, 0)
		p.walkChildren(n, marks)
		p.closeBlock()
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level, _ := strconv.Atoi(n.Data[1:])
		p.openBlock(Heading, level)
		p.walkChildren(n, marks)
		p.closeBlock()
	case atom.B, atom.Strong:
		marks.Bold = true
		p.walkChildren(n, marks)
	case atom.I, atom.Em:
		marks.Italic = true
		p.walkChildren(n, marks)
	case atom.A:
		marks.Link = attr(n, "href")
		p.walkChildren(n, marks)
	case atom.Img:
		if src := attr(n, "src"); src != "" {
			p.appendRun(Run{Image: src, Text: attr(n, "alt"), Link: marks.Link})
		}
	case atom.Br:
		r := marks
		r.Text = "\n"
		p.appendRun(r)
	case atom.Script, atom.Style:
	default:
		p.walkChildren(n, marks)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Render сериализует документ в HTML (без санитизации)
func Render(d *Document) string {
	var buf bytes.Buffer
	for _, b := range d.Blocks {
		_ = html.Render(&buf, blockNode(b))
	}
	return buf.String()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func blockNode(b Block) *html.Node {
	el := element(atom.P)
	if b.Kind == Heading {
		level := min(max(b.Level, 1), 6)
		tag := "h" + strconv.Itoa(level)
		el = element(atom.Lookup([]byte(tag)))
	}
	for _, r := range b.Runs {
		for _, n := range runNodes(r) {
			el.AppendChild(n)
		}
	}
	return el
}

func runNodes(r Run) []*html.Node {
	var nodes []*html.Node
	if r.Image != "" {
		img := element(atom.Img, html.Attribute{Key: "src", Val: r.Image})
		if r.Text != "" {
			img.Attr = append(img.Attr, html.Attribute{Key: "alt", Val: r.Text})
		}
		nodes = append(nodes, img)
	} else {
		for i, line := range strings.Split(r.Text, "\n") {
			if i > 0 {
				nodes = append(nodes, element(atom.Br))
			}
			if line != "" {
				nodes = append(nodes, &html.Node{Type: html.TextNode, Data: line})
			}
		}
		if r.Italic {
			nodes = []*html.Node{wrap(element(atom.Em), nodes)}
		}
		if r.Bold {
			nodes = []*html.Node{wrap(element(atom.Strong), nodes)}
		}
	}
	if r.Link != "" {
		nodes = []*html.Node{wrap(element(atom.A, html.Attribute{Key: "href", Val: r.Link}), nodes)}
	}
	return nodes
}

func wrap(parent *html.Node, children []*html.Node) *html.Node {
	for _, c := range children {
		parent.AppendChild(c)
	}
	return parent
}
