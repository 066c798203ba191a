package storage

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/stream"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type commentSub = stream.Stream[CommentSnapshot]

// MemoryStorage - хранилище в памяти
type MemoryStorage struct {
	posts         map[string]models.Post
	comments      map[string][]models.Comment
	subscriptions map[string]map[*commentSub]struct{}
	categories    []models.Category
	users         map[string]models.User
	sessions      map[string]models.AuthSession
	mu            sync.RWMutex
	log           logrus.FieldLogger
}

// NewMemoryStorage создает новое in-memory хранилище
func NewMemoryStorage(log logrus.FieldLogger) *MemoryStorage {
	return &MemoryStorage{
		posts:         make(map[string]models.Post),
		comments:      make(map[string][]models.Comment),
		subscriptions: make(map[string]map[*commentSub]struct{}),
		users:         make(map[string]models.User),
		sessions:      make(map[string]models.AuthSession),
		log:           log.WithField("storage", "memory"),
	}
}

// CreatePost добавляет новый пост, ID назначает хранилище
func (s *MemoryStorage) CreatePost(_ context.Context, post models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post.ID = uuid.New().String()
	post = clonePost(post)
	s.posts[post.ID] = post
	s.log.WithField("post_id", post.ID).Debug("post added")
	return clonePost(post), nil
}

// GetPostByID возвращает пост по ID
func (s *MemoryStorage) GetPostByID(_ context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, apperr.NotFound("post", id)
	}
	post = clonePost(post)
	return &post, nil
}

// UpdatePost частично обновляет пост
func (s *MemoryStorage) UpdatePost(_ context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, apperr.NotFound("post", id)
	}
	if patch.Title != nil {
		post.Title = *patch.Title
	}
	if patch.Content != nil {
		post.Content = *patch.Content
	}
	if patch.Categories != nil {
		post.Categories = slices.Clone(*patch.Categories)
	}
	if patch.Keywords != nil {
		post.Keywords = slices.Clone(*patch.Keywords)
	}
	post.UpdatedAt = patch.UpdatedAt
	s.posts[id] = post

	post = clonePost(post)
	return &post, nil
}

// DeletePost удаляет пост вместе с его комментариями
func (s *MemoryStorage) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[id]; !exists {
		return apperr.NotFound("post", id)
	}
	delete(s.posts, id)
	delete(s.comments, id)
	s.notifyLocked(id)
	return nil
}

// IteratePosts возвращает посты, подходящие под фильтр
func (s *MemoryStorage) IteratePosts(_ context.Context, q models.PostQuery) (PostIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.Post
	for _, post := range s.posts {
		if q.Author != "" && post.Author != q.Author {
			continue
		}
		if q.Category != "" && !slices.Contains(post.Categories, q.Category) {
			continue
		}
		if q.Keyword != "" && !slices.Contains(post.Keywords, q.Keyword) {
			continue
		}
		result = append(result, clonePost(post))
	}
	if q.NewestFirst {
		sort.SliceStable(result, func(i, j int) bool {
			if result[i].CreatedAt.Equal(result[j].CreatedAt) {
				return result[i].ID < result[j].ID
			}
			return result[i].CreatedAt.After(result[j].CreatedAt)
		})
	}
	return NewSliceIterator(result), nil
}

// AddLike добавляет лайк, если identity ещё не лайкал пост
func (s *MemoryStorage) AddLike(_ context.Context, postID, identity string) (models.LikeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.posts[postID]
	if !exists {
		return models.LikeState{}, apperr.NotFound("post", postID)
	}
	if !slices.Contains(post.LikedBy, identity) {
		post.LikedBy = append(slices.Clone(post.LikedBy), identity)
		post.LikesCount++
		s.posts[postID] = post
	}
	return likeState(post), nil
}

// RemoveLike снимает лайк, если он был
func (s *MemoryStorage) RemoveLike(_ context.Context, postID, identity string) (models.LikeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, exists := s.posts[postID]
	if !exists {
		return models.LikeState{}, apperr.NotFound("post", postID)
	}
	if i := slices.Index(post.LikedBy, identity); i >= 0 {
		post.LikedBy = slices.Delete(slices.Clone(post.LikedBy), i, i+1)
		post.LikesCount--
		s.posts[postID] = post
	}
	return likeState(post), nil
}

// AddComment добавляет комментарий в память и уведомляет подписчиков
func (s *MemoryStorage) AddComment(_ context.Context, comment models.Comment) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[comment.PostID]; !exists {
		return nil, apperr.NotFound("post", comment.PostID)
	}

	comment.ID = uuid.New().String()
	s.comments[comment.PostID] = append(s.comments[comment.PostID], comment)
	s.notifyLocked(comment.PostID)

	s.log.WithFields(logrus.Fields{"post_id": comment.PostID, "comment_id": comment.ID}).Debug("comment added")
	return &comment, nil
}

// GetCommentsByPostID возвращает комментарии к посту, новые первыми
func (s *MemoryStorage) GetCommentsByPostID(_ context.Context, postID string) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(postID), nil
}

// SubscribeToComments подписка на комментарии для поста.
// Первый снимок отправляется сразу.
func (s *MemoryStorage) SubscribeToComments(_ context.Context, postID string) (*stream.Stream[CommentSnapshot], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sub *commentSub
	sub = stream.New[CommentSnapshot](1, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscriptions[postID], sub)
		if len(s.subscriptions[postID]) == 0 {
			delete(s.subscriptions, postID)
		}
	})
	if s.subscriptions[postID] == nil {
		s.subscriptions[postID] = make(map[*commentSub]struct{})
	}
	s.subscriptions[postID][sub] = struct{}{}
	sub.Send(CommentSnapshot{PostID: postID, Comments: s.snapshotLocked(postID)})

	s.log.WithField("post_id", postID).Debug("comment subscription opened")
	return sub, nil
}

func (s *MemoryStorage) notifyLocked(postID string) {
	subs := s.subscriptions[postID]
	if len(subs) == 0 {
		return
	}
	snapshot := s.snapshotLocked(postID)
	for sub := range subs {
		sub.Send(CommentSnapshot{PostID: postID, Comments: slices.Clone(snapshot)})
	}
}

func (s *MemoryStorage) snapshotLocked(postID string) []models.Comment {
	stored := s.comments[postID]
	result := make([]models.Comment, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		result = append(result, stored[i])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// GetCategories возвращает все категории
func (s *MemoryStorage) GetCategories(_ context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.categories), nil
}

// AddCategory добавляет категорию
func (s *MemoryStorage) AddCategory(_ context.Context, name string) (models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if c.Name == name {
			return models.Category{}, apperr.ErrAlreadyExists
		}
	}
	category := models.Category{ID: uuid.New().String(), Name: name}
	s.categories = append(s.categories, category)
	return category, nil
}

func (s *MemoryStorage) CreateUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Email]; exists {
		return apperr.ErrAlreadyExists
	}
	s.users[user.Email] = user
	return nil
}

func (s *MemoryStorage) GetUser(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[email]
	if !exists {
		return nil, apperr.NotFound("user", email)
	}
	return &user, nil
}

func (s *MemoryStorage) CreateSession(_ context.Context, session models.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryStorage) GetSession(_ context.Context, id string) (*models.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, apperr.NotFound("session", id)
	}
	return &session, nil
}

func (s *MemoryStorage) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Close закрывает все открытые подписки
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	var subs []*commentSub
	for _, set := range s.subscriptions {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

func clonePost(p models.Post) models.Post {
	p.Categories = slices.Clone(p.Categories)
	p.LikedBy = slices.Clone(p.LikedBy)
	p.Keywords = slices.Clone(p.Keywords)
	return p
}

func likeState(p models.Post) models.LikeState {
	return models.LikeState{
		PostID:     p.ID,
		LikesCount: p.LikesCount,
		LikedBy:    slices.Clone(p.LikedBy),
	}
}
