package storage

import (
	"context"

	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/stream"

	"github.com/stretchr/testify/mock"
)

// MockStorage - мок Storage для тестов сервисов
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	args := m.Called(ctx, post)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *MockStorage) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	args := m.Called(ctx, id)
	post, _ := args.Get(0).(*models.Post)
	return post, args.Error(1)
}

func (m *MockStorage) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	args := m.Called(ctx, id, patch)
	post, _ := args.Get(0).(*models.Post)
	return post, args.Error(1)
}

func (m *MockStorage) DeletePost(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStorage) IteratePosts(ctx context.Context, q models.PostQuery) (PostIterator, error) {
	args := m.Called(ctx, q)
	if posts, ok := args.Get(0).([]models.Post); ok {
		return NewSliceIterator(posts), args.Error(1)
	}
	it, _ := args.Get(0).(PostIterator)
	return it, args.Error(1)
}

func (m *MockStorage) AddLike(ctx context.Context, postID, identity string) (models.LikeState, error) {
	args := m.Called(ctx, postID, identity)
	return args.Get(0).(models.LikeState), args.Error(1)
}

func (m *MockStorage) RemoveLike(ctx context.Context, postID, identity string) (models.LikeState, error) {
	args := m.Called(ctx, postID, identity)
	return args.Get(0).(models.LikeState), args.Error(1)
}

func (m *MockStorage) AddComment(ctx context.Context, comment models.Comment) (*models.Comment, error) {
	args := m.Called(ctx, comment)
	c, _ := args.Get(0).(*models.Comment)
	return c, args.Error(1)
}

func (m *MockStorage) GetCommentsByPostID(ctx context.Context, postID string) ([]models.Comment, error) {
	args := m.Called(ctx, postID)
	comments, _ := args.Get(0).([]models.Comment)
	return comments, args.Error(1)
}

func (m *MockStorage) SubscribeToComments(ctx context.Context, postID string) (*stream.Stream[CommentSnapshot], error) {
	args := m.Called(ctx, postID)
	sub, _ := args.Get(0).(*stream.Stream[CommentSnapshot])
	return sub, args.Error(1)
}

func (m *MockStorage) GetCategories(ctx context.Context) ([]models.Category, error) {
	args := m.Called(ctx)
	categories, _ := args.Get(0).([]models.Category)
	return categories, args.Error(1)
}

func (m *MockStorage) AddCategory(ctx context.Context, name string) (models.Category, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(models.Category), args.Error(1)
}

func (m *MockStorage) CreateUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStorage) GetUser(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockStorage) CreateSession(ctx context.Context, session models.AuthSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockStorage) GetSession(ctx context.Context, id string) (*models.AuthSession, error) {
	args := m.Called(ctx, id)
	session, _ := args.Get(0).(*models.AuthSession)
	return session, args.Error(1)
}

func (m *MockStorage) DeleteSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}
