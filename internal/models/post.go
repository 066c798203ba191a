package models

import (
	"slices"
	"time"
)

// Post - модель поста блога
type Post struct {
	ID         string    `json:"id" bson:"_id"`
	Title      string    `json:"title" bson:"title"`
	Content    string    `json:"content" bson:"content"` // санитизированный HTML
	Author     string    `json:"author" bson:"author"`
	Categories []string  `json:"categories" bson:"categories"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
	LikesCount int       `json:"likesCount" bson:"likesCount"`
	LikedBy    []string  `json:"likedBy" bson:"likedBy"`
	Keywords   []string  `json:"keywords" bson:"keywords"`
}

// LikedByIdentity сообщает, есть ли identity среди лайкнувших
func (p *Post) LikedByIdentity(identity string) bool {
	return slices.Contains(p.LikedBy, identity)
}

// PostFields - поля, которые задаёт автор при создании поста
type PostFields struct {
	Title      string   `json:"title" form:"title" validate:"required,max=300"`
	Content    string   `json:"content" form:"content"`
	Categories []string `json:"categories" form:"categories" validate:"dive,required"`
	Keywords   []string `json:"keywords" form:"keywords"`
}

// PostPatch - частичное обновление поста, nil означает "не менять"
type PostPatch struct {
	Title      *string   `json:"title"`
	Content    *string   `json:"content"`
	Categories *[]string `json:"categories"`
	Keywords   *[]string `json:"keywords"`
	UpdatedAt  time.Time `json:"-"`
}

// Empty сообщает, что патч ничего не меняет
func (p PostPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Categories == nil && p.Keywords == nil
}

// PostQuery - фильтр для выборки постов. Пустые поля не участвуют в фильтрации.
type PostQuery struct {
	Author   string
	Category string
	Keyword  string
	// NewestFirst упорядочивает по CreatedAt по убыванию
	NewestFirst bool
}

// LikeState - подтверждённое бэкендом состояние лайков после атомарной операции
type LikeState struct {
	PostID     string   `json:"postId"`
	LikesCount int      `json:"likesCount"`
	LikedBy    []string `json:"likedBy"`
}
