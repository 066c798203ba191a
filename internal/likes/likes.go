// Package likes - переключение лайка поста для одного пользователя.
//
// Сам лайк - атомарная условная операция бэкенда (добавить в likedBy и увеличить
// счётчик, если ещё не лайкал; симметрично для снятия). Ответ бэкенда вливается
// в локальное представление без повторного чтения поста.
package likes

import (
	"context"
	"slices"
	"sync"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/metrics"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/sirupsen/logrus"
)

// State - состояние пары (пост, пользователь)
type State int

const (
	// Unknown - пользователь не вошёл, переключение недоступно
	Unknown State = iota
	NotLiked
	Liked
)

func (s State) String() string {
	switch s {
	case NotLiked:
		return "not-liked"
	case Liked:
		return "liked"
	}
	return "unknown"
}

// View - локальная копия счётчика и множества лайкнувших для одного зрителя
type View struct {
	mu       sync.Mutex
	postID   string
	identity string
	count    int
	likedBy  []string
}

// NewView строит представление из снимка поста. viewer == nil даёт состояние Unknown.
func NewView(post models.Post, viewer *models.Identity) *View {
	v := &View{
		postID:  post.ID,
		count:   post.LikesCount,
		likedBy: slices.Clone(post.LikedBy),
	}
	if viewer != nil {
		v.identity = viewer.Email
	}
	return v
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) stateLocked() State {
	if v.identity == "" {
		return Unknown
	}
	if slices.Contains(v.likedBy, v.identity) {
		return Liked
	}
	return NotLiked
}

func (v *View) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count
}

func (v *View) LikedBy() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.likedBy)
}

// Merge заменяет локальные значения подтверждёнными бэкендом
func (v *View) Merge(s models.LikeState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s.PostID != "" && s.PostID != v.postID {
		return
	}
	v.count = s.LikesCount
	v.likedBy = slices.Clone(s.LikedBy)
}

// Toggler выполняет переключение через хранилище
type Toggler struct {
	store storage.Storage
	log   logrus.FieldLogger
}

func NewToggler(store storage.Storage, log logrus.FieldLogger) *Toggler {
	return &Toggler{store: store, log: log.WithField("component", "likes")}
}

// Toggle лайкает или снимает лайк в зависимости от текущего состояния view.
// При ошибке view не меняется.
func (t *Toggler) Toggle(ctx context.Context, v *View) (models.LikeState, error) {
	v.mu.Lock()
	state, postID, identity := v.stateLocked(), v.postID, v.identity
	v.mu.Unlock()

	var (
		result models.LikeState
		err    error
		action string
	)
	switch state {
	case Unknown:
		return models.LikeState{}, apperr.ErrNoIdentity
	case Liked:
		action = "unlike"
		result, err = t.store.RemoveLike(ctx, postID, identity)
	default:
		action = "like"
		result, err = t.store.AddLike(ctx, postID, identity)
	}
	if err != nil {
		metrics.RecordWriteFailure(action)
		t.log.WithError(err).WithFields(logrus.Fields{"post_id": postID, "identity": identity}).Error(action + " failed")
		return models.LikeState{}, err
	}

	metrics.RecordLike(action)
	v.Merge(result)
	return result, nil
}

// ToggleFor - переключение без сохранённого представления: читает пост, затем переключает
func (t *Toggler) ToggleFor(ctx context.Context, postID string, viewer *models.Identity) (models.LikeState, error) {
	if viewer == nil || viewer.Email == "" {
		return models.LikeState{}, apperr.ErrNoIdentity
	}
	post, err := t.store.GetPostByID(ctx, postID)
	if err != nil {
		return models.LikeState{}, err
	}
	return t.Toggle(ctx, NewView(*post, viewer))
}
