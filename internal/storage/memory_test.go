package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory() *MemoryStorage {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewMemoryStorage(log)
}

func addPost(t *testing.T, s *MemoryStorage, author string, created time.Time, categories, keywords []string) models.Post {
	t.Helper()
	post, err := s.CreatePost(context.Background(), models.Post{
		Title:      "Post by " + author,
		Content:    "<p>content</p>",
		Author:     author,
		Categories: categories,
		Keywords:   keywords,
		CreatedAt:  created,
		UpdatedAt:  created,
	})
	require.NoError(t, err)
	return post
}

func TestIteratePosts_Empty(t *testing.T) {
	storage := newTestMemory()

	it, err := storage.IteratePosts(context.Background(), models.PostQuery{NewestFirst: true})
	require.NoError(t, err)
	posts, err := Collect(it)

	// пустая коллекция - не ошибка
	assert.NoError(t, err)
	assert.Empty(t, posts)
}

func TestIteratePosts_NewestFirst(t *testing.T) {
	storage := newTestMemory()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	addPost(t, storage, "a@x.io", base, nil, nil)
	addPost(t, storage, "b@x.io", base.Add(2*time.Hour), nil, nil)
	addPost(t, storage, "c@x.io", base.Add(time.Hour), nil, nil)

	it, err := storage.IteratePosts(context.Background(), models.PostQuery{NewestFirst: true})
	require.NoError(t, err)
	posts, err := Collect(it)
	require.NoError(t, err)

	require.Len(t, posts, 3)
	assert.Equal(t, "b@x.io", posts[0].Author)
	assert.Equal(t, "c@x.io", posts[1].Author)
	assert.Equal(t, "a@x.io", posts[2].Author)
}

func TestIteratePosts_Filters(t *testing.T) {
	storage := newTestMemory()
	now := time.Now()

	addPost(t, storage, "a@x.io", now, []string{"go"}, []string{"hello", "world"})
	addPost(t, storage, "b@x.io", now, []string{"rust", "go"}, []string{"world"})
	addPost(t, storage, "a@x.io", now, nil, nil)

	cases := []struct {
		name  string
		query models.PostQuery
		want  int
	}{
		{"author", models.PostQuery{Author: "a@x.io"}, 2},
		{"category", models.PostQuery{Category: "go"}, 2},
		{"keyword", models.PostQuery{Keyword: "hello"}, 1},
		{"keyword case sensitive", models.PostQuery{Keyword: "Hello"}, 0},
		{"nobody", models.PostQuery{Author: "nobody@x.io"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it, err := storage.IteratePosts(context.Background(), tc.query)
			require.NoError(t, err)
			posts, err := Collect(it)
			assert.NoError(t, err)
			assert.Len(t, posts, tc.want)
		})
	}
}

func TestGetPostByID_NotFound(t *testing.T) {
	storage := newTestMemory()

	post, err := storage.GetPostByID(context.Background(), "nonexistent-id")

	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Nil(t, post)
}

func TestCreatePost_AssignsID(t *testing.T) {
	storage := newTestMemory()

	post := addPost(t, storage, "a@x.io", time.Now(), []string{"go"}, nil)

	assert.NotEmpty(t, post.ID)
	fetched, err := storage.GetPostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Title, fetched.Title)
	assert.Equal(t, []string{"go"}, fetched.Categories)
}

func TestGetPostByID_ReturnsCopy(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), []string{"go"}, nil)

	fetched, err := storage.GetPostByID(context.Background(), post.ID)
	require.NoError(t, err)
	fetched.Categories[0] = "mutated"

	again, err := storage.GetPostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "go", again.Categories[0])
}

func TestUpdatePost_Partial(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), []string{"go"}, nil)

	title := "New title"
	updatedAt := time.Now().Add(time.Minute)
	updated, err := storage.UpdatePost(context.Background(), post.ID, models.PostPatch{Title: &title, UpdatedAt: updatedAt})

	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, post.Content, updated.Content)
	assert.Equal(t, []string{"go"}, updated.Categories)
	assert.True(t, updatedAt.Equal(updated.UpdatedAt))
}

func TestUpdatePost_NotFound(t *testing.T) {
	storage := newTestMemory()
	title := "x"

	_, err := storage.UpdatePost(context.Background(), "missing", models.PostPatch{Title: &title})

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeletePost(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), nil, nil)

	require.NoError(t, storage.DeletePost(context.Background(), post.ID))

	_, err := storage.GetPostByID(context.Background(), post.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, storage.DeletePost(context.Background(), post.ID), apperr.ErrNotFound)
}

func TestLikes_AddIsIdempotent(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), nil, nil)

	state, err := storage.AddLike(context.Background(), post.ID, "b@x.io")
	require.NoError(t, err)
	assert.Equal(t, 1, state.LikesCount)

	state, err = storage.AddLike(context.Background(), post.ID, "b@x.io")
	require.NoError(t, err)
	assert.Equal(t, 1, state.LikesCount)
	assert.Equal(t, []string{"b@x.io"}, state.LikedBy)
}

func TestLikes_RemoveAbsentIsNoop(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), nil, nil)

	state, err := storage.RemoveLike(context.Background(), post.ID, "b@x.io")

	require.NoError(t, err)
	assert.Equal(t, 0, state.LikesCount)
	assert.Empty(t, state.LikedBy)
}

func TestLikes_ConcurrentTogglesKeepCountConsistent(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), nil, nil)
	identities := []string{"1@x.io", "2@x.io", "3@x.io", "4@x.io", "5@x.io"}

	var wg sync.WaitGroup
	for _, id := range identities {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id string, add bool) {
				defer wg.Done()
				if add {
					_, _ = storage.AddLike(context.Background(), post.ID, id)
				} else {
					_, _ = storage.RemoveLike(context.Background(), post.ID, id)
				}
			}(id, i%2 == 0)
		}
	}
	wg.Wait()

	fetched, err := storage.GetPostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, len(fetched.LikedBy), fetched.LikesCount)
}

func TestLikes_MissingPost(t *testing.T) {
	storage := newTestMemory()

	_, err := storage.AddLike(context.Background(), "missing", "b@x.io")

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAddComment_NoPost(t *testing.T) {
	storage := newTestMemory()

	comment, err := storage.AddComment(context.Background(), models.Comment{PostID: "nonexistent-post-id", Content: "hi"})

	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Nil(t, comment)
}

func TestGetCommentsByPostID_NewestFirst(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), nil, nil)
	base := time.Now()

	_, err := storage.AddComment(context.Background(), models.Comment{PostID: post.ID, Author: "b@x.io", Content: "first", CreatedAt: base})
	require.NoError(t, err)
	_, err = storage.AddComment(context.Background(), models.Comment{PostID: post.ID, Author: "c@x.io", Content: "second", CreatedAt: base.Add(time.Second)})
	require.NoError(t, err)

	comments, err := storage.GetCommentsByPostID(context.Background(), post.ID)

	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "second", comments[0].Content)
	assert.Equal(t, "first", comments[1].Content)
}

func TestGetCommentsByPostID_UnknownPostIsEmpty(t *testing.T) {
	storage := newTestMemory()

	comments, err := storage.GetCommentsByPostID(context.Background(), "missing")

	assert.NoError(t, err)
	assert.Empty(t, comments)
}

func TestSubscribeToComments_Snapshots(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), nil, nil)

	sub, err := storage.SubscribeToComments(context.Background(), post.ID)
	require.NoError(t, err)
	defer sub.Close()

	// первый снимок приходит сразу
	select {
	case snap := <-sub.C():
		assert.Equal(t, post.ID, snap.PostID)
		assert.Empty(t, snap.Comments)
	case <-time.After(time.Second):
		t.Fatal("initial snapshot not delivered")
	}

	_, err = storage.AddComment(context.Background(), models.Comment{PostID: post.ID, Content: "Test comment", CreatedAt: time.Now()})
	require.NoError(t, err)

	select {
	case snap := <-sub.C():
		require.Len(t, snap.Comments, 1)
		assert.Equal(t, "Test comment", snap.Comments[0].Content)
	case <-time.After(time.Second):
		t.Fatal("failed to receive snapshot")
	}
}

func TestSubscribeToComments_CloseStopsDelivery(t *testing.T) {
	storage := newTestMemory()
	post := addPost(t, storage, "a@x.io", time.Now(), nil, nil)

	sub, err := storage.SubscribeToComments(context.Background(), post.ID)
	require.NoError(t, err)
	<-sub.C()

	sub.Close()
	sub.Close()

	_, err = storage.AddComment(context.Background(), models.Comment{PostID: post.ID, Content: "late"})
	require.NoError(t, err)

	_, ok := <-sub.C()
	assert.False(t, ok)

	storage.mu.RLock()
	defer storage.mu.RUnlock()
	assert.Empty(t, storage.subscriptions[post.ID])
}

func TestCategories(t *testing.T) {
	storage := newTestMemory()

	_, err := storage.AddCategory(context.Background(), "Go")
	require.NoError(t, err)
	_, err = storage.AddCategory(context.Background(), "Go")
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	categories, err := storage.GetCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Go", categories[0].Name)
}

func TestUsersAndSessions(t *testing.T) {
	storage := newTestMemory()
	ctx := context.Background()

	require.NoError(t, storage.CreateUser(ctx, models.User{Email: "a@x.io", Provider: models.ProviderPassword}))
	assert.ErrorIs(t, storage.CreateUser(ctx, models.User{Email: "a@x.io"}), apperr.ErrAlreadyExists)

	user, err := storage.GetUser(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderPassword, user.Provider)

	require.NoError(t, storage.CreateSession(ctx, models.AuthSession{ID: "s1", Email: "a@x.io"}))
	session, err := storage.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", session.Email)

	require.NoError(t, storage.DeleteSession(ctx, "s1"))
	_, err = storage.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
