package likes

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

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestView_States(t *testing.T) {
	post := models.Post{ID: "p1", LikesCount: 1, LikedBy: []string{"b@x.io"}}

	assert.Equal(t, Unknown, NewView(post, nil).State())
	assert.Equal(t, Liked, NewView(post, &models.Identity{Email: "b@x.io"}).State())
	assert.Equal(t, NotLiked, NewView(post, &models.Identity{Email: "c@x.io"}).State())
}

func TestToggle_UnknownIsDisabled(t *testing.T) {
	store := new(storage.MockStorage)
	toggler := NewToggler(store, quietLogger())

	_, err := toggler.Toggle(context.Background(), NewView(models.Post{ID: "p1"}, nil))

	assert.ErrorIs(t, err, apperr.ErrNoIdentity)
	store.AssertNotCalled(t, "AddLike", mock.Anything, mock.Anything, mock.Anything)
}

func TestToggle_MergesWithoutRefetch(t *testing.T) {
	store := new(storage.MockStorage)
	toggler := NewToggler(store, quietLogger())
	ctx := context.Background()

	// локальный счётчик устарел: бэкенд знает о чужом лайке
	view := NewView(models.Post{ID: "p1", LikesCount: 0}, &models.Identity{Email: "b@x.io"})
	store.On("AddLike", ctx, "p1", "b@x.io").
		Return(models.LikeState{PostID: "p1", LikesCount: 2, LikedBy: []string{"c@x.io", "b@x.io"}}, nil)

	state, err := toggler.Toggle(ctx, view)

	require.NoError(t, err)
	assert.Equal(t, 2, state.LikesCount)
	assert.Equal(t, 2, view.Count())
	assert.Equal(t, Liked, view.State())
	store.AssertNotCalled(t, "GetPostByID", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestToggle_FailureKeepsView(t *testing.T) {
	store := new(storage.MockStorage)
	toggler := NewToggler(store, quietLogger())
	ctx := context.Background()

	view := NewView(models.Post{ID: "p1", LikesCount: 1, LikedBy: []string{"b@x.io"}}, &models.Identity{Email: "b@x.io"})
	store.On("RemoveLike", ctx, "p1", "b@x.io").Return(models.LikeState{}, apperr.Network(errors.New("timeout")))

	_, err := toggler.Toggle(ctx, view)

	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, 1, view.Count())
	assert.Equal(t, Liked, view.State())
}

func TestToggle_ScenarioLikeThenUnlike(t *testing.T) {
	store := storage.NewMemoryStorage(quietLogger())
	toggler := NewToggler(store, quietLogger())
	ctx := context.Background()

	post, err := store.CreatePost(ctx, models.Post{Title: "Hello", Author: "a@x.io", CreatedAt: time.Now()})
	require.NoError(t, err)

	view := NewView(post, &models.Identity{Email: "b@x.io"})

	state, err := toggler.Toggle(ctx, view)
	require.NoError(t, err)
	assert.Equal(t, 1, state.LikesCount)
	assert.Equal(t, []string{"b@x.io"}, state.LikedBy)

	state, err = toggler.Toggle(ctx, view)
	require.NoError(t, err)
	assert.Equal(t, 0, state.LikesCount)
	assert.Empty(t, state.LikedBy)
	assert.Equal(t, NotLiked, view.State())
}

func TestToggle_StaleViewsDoNotDoubleCount(t *testing.T) {
	store := storage.NewMemoryStorage(quietLogger())
	toggler := NewToggler(store, quietLogger())
	ctx := context.Background()

	post, err := store.CreatePost(ctx, models.Post{Title: "Hello", Author: "a@x.io"})
	require.NoError(t, err)

	// две вкладки одного пользователя, обе думают, что лайка нет
	first := NewView(post, &models.Identity{Email: "b@x.io"})
	second := NewView(post, &models.Identity{Email: "b@x.io"})

	_, err = toggler.Toggle(ctx, first)
	require.NoError(t, err)
	state, err := toggler.Toggle(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, 1, state.LikesCount)
	assert.Equal(t, []string{"b@x.io"}, state.LikedBy)
}

func TestToggleFor(t *testing.T) {
	store := storage.NewMemoryStorage(quietLogger())
	toggler := NewToggler(store, quietLogger())
	ctx := context.Background()

	post, err := store.CreatePost(ctx, models.Post{Title: "Hello", Author: "a@x.io"})
	require.NoError(t, err)

	state, err := toggler.ToggleFor(ctx, post.ID, &models.Identity{Email: "b@x.io"})
	require.NoError(t, err)
	assert.Equal(t, 1, state.LikesCount)

	_, err = toggler.ToggleFor(ctx, "missing", &models.Identity{Email: "b@x.io"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = toggler.ToggleFor(ctx, post.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrNoIdentity)
}
