package richtext

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrEmptyImageURL  = errors.New("image url is empty")
	ErrInvalidURL     = errors.New("url scheme is not allowed")
	ErrUnknownCommand = errors.New("unknown editor command")
)

// Pos - позиция в документе: номер блока и смещение внутри него
type Pos struct {
	Block  int `json:"block"`
	Offset int `json:"offset"`
}

// Selection - выделение от From до To. From == To - просто курсор.
type Selection struct {
	From Pos `json:"from"`
	To   Pos `json:"to"`
}

func (s Selection) Collapsed() bool { return s.From == s.To }

// Caret - свёрнутое выделение
func Caret(block, offset int) Selection {
	p := Pos{Block: block, Offset: offset}
	return Selection{From: p, To: p}
}

func (p Pos) before(o Pos) bool {
	return p.Block < o.Block || (p.Block == o.Block && p.Offset < o.Offset)
}

// Editor применяет команды форматирования к документу.
// После каждого изменения вызывается onChange с санитизированным HTML.
// Не потокобезопасен: один редактор - одна сессия правки.
type Editor struct {
	doc      *Document
	sel      Selection
	html     string
	onChange func(string)
}

// NewEditor загружает content. onChange может быть nil.
func NewEditor(content string, onChange func(string)) (*Editor, error) {
	doc, err := Parse(Sanitize(content))
	if err != nil {
		return nil, err
	}
	e := &Editor{doc: doc, onChange: onChange}
	e.html = Sanitize(Render(doc))
	return e, nil
}

// HTML возвращает текущее содержимое
func (e *Editor) HTML() string { return e.html }

// Document возвращает копию документа
func (e *Editor) Document() *Document { return e.doc.clone() }

func (e *Editor) Selection() Selection { return e.sel }

// Select устанавливает выделение, выходящие за документ позиции прижимаются к краям
func (e *Editor) Select(sel Selection) {
	e.sel = e.clamp(sel)
}

func (e *Editor) clamp(sel Selection) Selection {
	if sel.To.before(sel.From) {
		sel.From, sel.To = sel.To, sel.From
	}
	fix := func(p Pos) Pos {
		p.Block = min(max(p.Block, 0), len(e.doc.Blocks)-1)
		p.Offset = min(max(p.Offset, 0), e.doc.Blocks[p.Block].Len())
		return p
	}
	return Selection{From: fix(sel.From), To: fix(sel.To)}
}

func (e *Editor) changed() {
	for i := range e.doc.Blocks {
		e.doc.Blocks[i].normalize()
	}
	e.html = Sanitize(Render(e.doc))
	if e.onChange != nil {
		e.onChange(e.html)
	}
}

// forRuns вызывает fn для каждого run внутри выделения, разрезая крайние runs по границам
func forRuns(d *Document, sel Selection, fn func(*Run)) {
	for bi := sel.From.Block; bi <= sel.To.Block; bi++ {
		b := &d.Blocks[bi]
		start, end := 0, b.Len()
		if bi == sel.From.Block {
			start = sel.From.Offset
		}
		if bi == sel.To.Block {
			end = sel.To.Offset
		}
		if start >= end {
			continue
		}
		i := b.splitAt(start)
		j := b.splitAt(end)
		for k := i; k < j; k++ {
			fn(&b.Runs[k])
		}
	}
}

func (e *Editor) textRuns() []Run {
	var runs []Run
	forRuns(e.doc.clone(), e.sel, func(r *Run) {
		if r.Image == "" {
			runs = append(runs, *r)
		}
	})
	return runs
}

func (e *Editor) toggleMark(has func(Run) bool, set func(*Run, bool)) {
	runs := e.textRuns()
	if len(runs) == 0 {
		return
	}
	on := false
	for _, r := range runs {
		if !has(r) {
			on = true
			break
		}
	}
	forRuns(e.doc, e.sel, func(r *Run) {
		if r.Image == "" {
			set(r, on)
		}
	})
	e.changed()
}

func (e *Editor) ToggleBold() {
	e.toggleMark(func(r Run) bool { return r.Bold }, func(r *Run, on bool) { r.Bold = on })
}

func (e *Editor) ToggleItalic() {
	e.toggleMark(func(r Run) bool { return r.Italic }, func(r *Run, on bool) { r.Italic = on })
}

// ToggleHeading делает блоки выделения заголовками уровня level,
// либо возвращает их в абзацы, если все они уже такого уровня
func (e *Editor) ToggleHeading(level int) {
	level = min(max(level, 1), 6)
	all := true
	for bi := e.sel.From.Block; bi <= e.sel.To.Block; bi++ {
		b := e.doc.Blocks[bi]
		if b.Kind != Heading || b.Level != level {
			all = false
			break
		}
	}
	for bi := e.sel.From.Block; bi <= e.sel.To.Block; bi++ {
		b := &e.doc.Blocks[bi]
		if all {
			b.Kind, b.Level = Paragraph, 0
		} else {
			b.Kind, b.Level = Heading, level
		}
	}
	e.changed()
}

// SetLink ставит ссылку на выделение. Если курсор внутри существующей ссылки,
// выделение расширяется до всей ссылки. Пустой href снимает ссылку.
func (e *Editor) SetLink(href string) error {
	href = strings.TrimSpace(href)
	if href != "" && !allowedURL(href) {
		return ErrInvalidURL
	}
	sel := e.extendLink(e.sel)
	if sel.Collapsed() {
		return nil
	}
	forRuns(e.doc, sel, func(r *Run) { r.Link = href })
	e.sel = sel
	e.changed()
	return nil
}

// LinkAt возвращает href ссылки под началом выделения
func (e *Editor) LinkAt() string {
	b := e.doc.Blocks[e.sel.From.Block]
	if k, _, _ := linkRunAt(b, e.sel.From.Offset, linkTouches); k >= 0 {
		return b.Runs[k].Link
	}
	return ""
}

func (e *Editor) extendLink(sel Selection) Selection {
	fromMode, toMode := linkStartsAt, linkEndsAt
	if sel.Collapsed() {
		fromMode, toMode = linkTouches, linkTouches
	}
	from := e.doc.Blocks[sel.From.Block]
	if k, start, _ := linkRunAt(from, sel.From.Offset, fromMode); k >= 0 {
		for k > 0 && from.Runs[k-1].Link == from.Runs[k].Link {
			k--
			start -= from.Runs[k].length()
		}
		sel.From.Offset = start
	}
	to := e.doc.Blocks[sel.To.Block]
	if k, _, end := linkRunAt(to, sel.To.Offset, toMode); k >= 0 {
		for k < len(to.Runs)-1 && to.Runs[k+1].Link == to.Runs[k].Link {
			k++
			end += to.Runs[k].length()
		}
		sel.To.Offset = end
	}
	return sel
}

type linkMode int

const (
	linkTouches  linkMode = iota // позиция внутри run или на любой его границе
	linkStartsAt                 // позиция в [start, end)
	linkEndsAt                   // позиция в (start, end]
)

// linkRunAt ищет первый run со ссылкой, которому принадлежит позиция offset
func linkRunAt(b Block, offset int, mode linkMode) (idx, start, end int) {
	at := 0
	for i, r := range b.Runs {
		n := r.length()
		lo, hi := offset >= at, offset <= at+n
		switch mode {
		case linkStartsAt:
			hi = offset < at+n
		case linkEndsAt:
			lo = offset > at
		}
		if r.Link != "" && lo && hi {
			return i, at, at + n
		}
		at += n
	}
	return -1, 0, 0
}

// InsertImage вставляет картинку в конец выделения. Пустой src - ErrEmptyImageURL.
func (e *Editor) InsertImage(src string) error {
	src = strings.TrimSpace(src)
	if !CanInsertImage(src) {
		return ErrEmptyImageURL
	}
	if !allowedURL(src) {
		return ErrInvalidURL
	}
	pos := e.sel.To
	b := &e.doc.Blocks[pos.Block]
	i := b.splitAt(pos.Offset)
	b.Runs = append(b.Runs[:i], append([]Run{{Image: src}}, b.Runs[i:]...)...)
	e.sel = Caret(pos.Block, pos.Offset+1)
	e.changed()
	return nil
}

// CanInsertImage - кнопка вставки картинки активна только при непустом адресе
func CanInsertImage(src string) bool {
	return strings.TrimSpace(src) != ""
}

// IsActive сообщает, применено ли оформление ко всему выделению: "bold", "italic", "link", "heading"
func (e *Editor) IsActive(mark string) bool {
	if mark == "heading" {
		for bi := e.sel.From.Block; bi <= e.sel.To.Block; bi++ {
			if e.doc.Blocks[bi].Kind != Heading {
				return false
			}
		}
		return true
	}
	if mark == "link" {
		return e.LinkAt() != ""
	}
	runs := e.textRuns()
	if len(runs) == 0 {
		return false
	}
	for _, r := range runs {
		if (mark == "bold" && !r.Bold) || (mark == "italic" && !r.Italic) {
			return false
		}
	}
	return mark == "bold" || mark == "italic"
}

func allowedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return true
	}
	return false
}
