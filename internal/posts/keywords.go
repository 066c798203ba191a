package posts

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/richtext"
)

const maxKeywords = 256

// Keywords строит набор ключевых слов поста: слова заголовка и текста в нижнем регистре
// (не короче двух символов) плюс явно заданные автором. Порядок - первое появление.
func Keywords(title, content string, extra []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(w string) {
		if _, ok := seen[w]; ok || len(out) >= maxKeywords {
			return
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}

	for _, w := range tokenize(title + "\n" + richtext.PlainText(content)) {
		if utf8.RuneCountInString(w) >= 2 {
			add(w)
		}
	}
	for _, w := range extra {
		if w = NormalizeTerm(w); w != "" {
			add(w)
		}
	}
	return out
}

// ExtraKeywords - ключевые слова поста, которые не выводятся из его заголовка и текста,
// то есть добавленные автором. Слово, совпавшее с выведенным, сюда не попадает.
func ExtraKeywords(post models.Post) []string {
	derived := make(map[string]struct{})
	for _, w := range Keywords(post.Title, post.Content, nil) {
		derived[w] = struct{}{}
	}
	extra := []string{}
	for _, w := range post.Keywords {
		if _, ok := derived[w]; !ok {
			extra = append(extra, w)
		}
	}
	return extra
}

// NormalizeTerm приводит поисковый запрос к виду, в котором хранятся ключевые слова
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
