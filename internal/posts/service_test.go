package posts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	alice = &models.Identity{Email: "alice@x.io"}
	bob   = &models.Identity{Email: "bob@x.io"}
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newMemoryService() *Service {
	return NewService(storage.NewMemoryStorage(quietLogger()), quietLogger())
}

func collect(t *testing.T, it storage.PostIterator, err error) []models.Post {
	t.Helper()
	require.NoError(t, err)
	posts, err := storage.Collect(it)
	require.NoError(t, err)
	return posts
}

func TestCreate_ThenGet(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()

	post, err := svc.Create(ctx, alice, models.PostFields{Title: "Hello", Content: "<p>Hi</p>"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LikesCount)
	assert.Empty(t, got.LikedBy)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.Equal(t, "alice@x.io", got.Author)
	assert.Equal(t, "<p>Hi</p>", got.Content)
}

func TestCreate_ScenarioListByAuthor(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, models.PostFields{Title: "Hello", Content: "<p>Hi</p>"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, models.PostFields{Title: "Other", Content: "<p>...</p>"})
	require.NoError(t, err)

	it, err := svc.ListByAuthor(ctx, alice.Email)
	posts := collect(t, it, err)

	require.Len(t, posts, 1)
	assert.Equal(t, "Hello", posts[0].Title)
	assert.Equal(t, 0, posts[0].LikesCount)
}

func TestListByAuthor_OnlyMatchingAuthors(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()
	authors := []*models.Identity{alice, bob, alice, bob, bob}

	for i, a := range authors {
		_, err := svc.Create(ctx, a, models.PostFields{Title: "Post " + string(rune('A'+i))})
		require.NoError(t, err)
	}

	it, err := svc.ListByAuthor(ctx, bob.Email)
	posts := collect(t, it, err)

	assert.Len(t, posts, 3)
	for _, p := range posts {
		assert.Equal(t, bob.Email, p.Author)
	}
}

func TestCreate_SanitizesContent(t *testing.T) {
	svc := newMemoryService()

	post, err := svc.Create(context.Background(), alice, models.PostFields{
		Title:   "XSS",
		Content: `<p>ok</p><script>alert(1)</script>`,
	})

	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", post.Content)
}

func TestCreate_Validation(t *testing.T) {
	svc := newMemoryService()

	_, err := svc.Create(context.Background(), alice, models.PostFields{Title: "   "})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Create(context.Background(), nil, models.PostFields{Title: "Hello"})
	assert.ErrorIs(t, err, apperr.ErrNoIdentity)
}

func TestListByKeyword_CaseNormalized(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, models.PostFields{Title: "Summer travel notes", Content: "<p>Beaches</p>"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, alice, models.PostFields{Title: "Cooking", Content: "<p>Travelling soon</p>"})
	require.NoError(t, err)

	it, err := svc.ListByKeyword(ctx, "Travel")
	posts := collect(t, it, err)

	// только точное совпадение: "travelling" не подходит
	require.Len(t, posts, 1)
	assert.Equal(t, "Summer travel notes", posts[0].Title)

	it, err = svc.ListByKeyword(ctx, "  ")
	assert.Empty(t, collect(t, it, err))
}

func TestKeywords(t *testing.T) {
	kw := Keywords("Hello, World!", "<h2>Big</h2><p>world of <b>Go</b> a</p>", []string{" Extra ", ""})

	assert.Equal(t, []string{"hello", "world", "big", "of", "go", "extra"}, kw)
}

func TestUpdate_ByAuthor(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	post, err := svc.Create(ctx, alice, models.PostFields{Title: "Hello", Content: "<p>Hi</p>", Categories: []string{"c1"}})
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(time.Hour) }
	title := "Goodbye"
	updated, err := svc.Update(ctx, alice, post.ID, models.PostPatch{Title: &title})

	require.NoError(t, err)
	assert.Equal(t, "Goodbye", updated.Title)
	assert.Equal(t, "<p>Hi</p>", updated.Content)
	assert.Equal(t, []string{"c1"}, updated.Categories)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	assert.Contains(t, updated.Keywords, "goodbye")
	assert.NotContains(t, updated.Keywords, "hello")
}

func TestUpdate_KeepsAuthorKeywords(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()

	post, err := svc.Create(ctx, alice, models.PostFields{Title: "Hello", Content: "<p>Hi</p>", Keywords: []string{"Golang"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, ExtraKeywords(post))

	title, content := "Goodbye", "<p>See you</p>"
	updated, err := svc.Update(ctx, alice, post.ID, models.PostPatch{Title: &title, Content: &content})
	require.NoError(t, err)
	assert.Contains(t, updated.Keywords, "golang")
	assert.Contains(t, updated.Keywords, "goodbye")

	it, err := svc.ListByKeyword(ctx, "GOLANG")
	require.Len(t, collect(t, it, err), 1)

	none := []string{}
	updated, err = svc.Update(ctx, alice, post.ID, models.PostPatch{Keywords: &none})
	require.NoError(t, err)
	assert.NotContains(t, updated.Keywords, "golang")
}

func TestUpdate_NonAuthorRejected(t *testing.T) {
	store := new(storage.MockStorage)
	svc := NewService(store, quietLogger())
	ctx := context.Background()

	store.On("GetPostByID", ctx, "p1").Return(&models.Post{ID: "p1", Author: alice.Email}, nil)

	title := "hijack"
	_, err := svc.Update(ctx, bob, "p1", models.PostPatch{Title: &title})

	assert.ErrorIs(t, err, apperr.ErrWriteRejected)
	store.AssertNotCalled(t, "UpdatePost", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete_MissingIsNoop(t *testing.T) {
	svc := newMemoryService()

	assert.NoError(t, svc.Delete(context.Background(), alice, "does-not-exist"))
}

func TestDelete_NonAuthorRejected(t *testing.T) {
	store := new(storage.MockStorage)
	svc := NewService(store, quietLogger())
	ctx := context.Background()

	store.On("GetPostByID", ctx, "p1").Return(&models.Post{ID: "p1", Author: alice.Email}, nil)

	err := svc.Delete(ctx, bob, "p1")

	assert.ErrorIs(t, err, apperr.ErrWriteRejected)
	store.AssertNotCalled(t, "DeletePost", mock.Anything, mock.Anything)
}

func TestDelete_RaceWithOtherDeleteIsNoop(t *testing.T) {
	store := new(storage.MockStorage)
	svc := NewService(store, quietLogger())
	ctx := context.Background()

	store.On("GetPostByID", ctx, "p1").Return(&models.Post{ID: "p1", Author: alice.Email}, nil)
	store.On("DeletePost", ctx, "p1").Return(apperr.NotFound("post", "p1"))

	assert.NoError(t, svc.Delete(ctx, alice, "p1"))
	store.AssertExpectations(t)
}

func TestCreate_BackendFailureSurfaces(t *testing.T) {
	store := new(storage.MockStorage)
	svc := NewService(store, quietLogger())
	ctx := context.Background()

	store.On("CreatePost", ctx, mock.AnythingOfType("models.Post")).
		Return(models.Post{}, apperr.Network(errors.New("connection reset")))

	_, err := svc.Create(ctx, alice, models.PostFields{Title: "Hello"})

	assert.ErrorIs(t, err, apperr.ErrNetwork)
}
