// Package storage - адаптеры бэкенда документов: in-memory, PostgreSQL и MongoDB.
package storage

import (
	"context"

	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/stream"
)

// PostIterator - ленивая однопроходная выборка постов.
// После исчерпания перезапустить нельзя, нужно запросить заново.
type PostIterator interface {
	Next() bool
	Post() models.Post
	Err() error
	Close() error
}

// CommentSnapshot - полный упорядоченный список комментариев поста на момент изменения
type CommentSnapshot struct {
	PostID   string
	Comments []models.Comment
}

// Storage - интерфейс для всех типов хранилищ (in-memory, PostgreSQL, MongoDB)
type Storage interface {
	CreatePost(ctx context.Context, post models.Post) (models.Post, error)
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	IteratePosts(ctx context.Context, q models.PostQuery) (PostIterator, error)

	// AddLike атомарно добавляет identity в likedBy и увеличивает счётчик,
	// если identity ещё не в множестве. RemoveLike - симметричная операция.
	AddLike(ctx context.Context, postID, identity string) (models.LikeState, error)
	RemoveLike(ctx context.Context, postID, identity string) (models.LikeState, error)

	AddComment(ctx context.Context, comment models.Comment) (*models.Comment, error)
	GetCommentsByPostID(ctx context.Context, postID string) ([]models.Comment, error)
	SubscribeToComments(ctx context.Context, postID string) (*stream.Stream[CommentSnapshot], error)

	GetCategories(ctx context.Context) ([]models.Category, error)
	AddCategory(ctx context.Context, name string) (models.Category, error)

	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, email string) (*models.User, error)
	CreateSession(ctx context.Context, session models.AuthSession) error
	GetSession(ctx context.Context, id string) (*models.AuthSession, error)
	DeleteSession(ctx context.Context, id string) error

	Close() error
}

// Collect вычитывает итератор целиком и закрывает его
func Collect(it PostIterator) ([]models.Post, error) {
	defer it.Close()
	var posts []models.Post
	for it.Next() {
		posts = append(posts, it.Post())
	}
	return posts, it.Err()
}

// sliceIterator - итератор поверх готового среза
type sliceIterator struct {
	posts []models.Post
	pos   int
	cur   models.Post
}

// NewSliceIterator оборачивает готовый срез постов в итератор
func NewSliceIterator(posts []models.Post) PostIterator {
	return &sliceIterator{posts: posts}
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.posts) {
		return false
	}
	it.cur = it.posts[it.pos]
	it.pos++
	return true
}

func (it *sliceIterator) Post() models.Post { return it.cur }
func (it *sliceIterator) Err() error        { return nil }

func (it *sliceIterator) Close() error {
	it.pos = len(it.posts)
	return nil
}
