// Package posts - доступ к постам: выборки, создание, правка и удаление с проверкой авторства.
package posts

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/metrics"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/policy"
	"github.com/MosinFAM/blog-posts/internal/richtext"
	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Service - посты поверх хранилища
type Service struct {
	store    storage.Storage
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(store storage.Storage, log logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
		log:      log.WithField("component", "posts"),
		now:      time.Now,
	}
}

// ListAll - все посты, новые первыми. Итератор одноразовый.
func (s *Service) ListAll(ctx context.Context) (storage.PostIterator, error) {
	return s.store.IteratePosts(ctx, models.PostQuery{NewestFirst: true})
}

// ListByAuthor - посты автора, новые первыми
func (s *Service) ListByAuthor(ctx context.Context, identity string) (storage.PostIterator, error) {
	return s.store.IteratePosts(ctx, models.PostQuery{Author: identity, NewestFirst: true})
}

// ListByCategory - посты с категорией categoryID
func (s *Service) ListByCategory(ctx context.Context, categoryID string) (storage.PostIterator, error) {
	return s.store.IteratePosts(ctx, models.PostQuery{Category: categoryID, NewestFirst: true})
}

// ListByKeyword - точное совпадение term (в нижнем регистре) с одним из ключевых слов поста
func (s *Service) ListByKeyword(ctx context.Context, term string) (storage.PostIterator, error) {
	term = NormalizeTerm(term)
	if term == "" {
		return storage.NewSliceIterator(nil), nil
	}
	return s.store.IteratePosts(ctx, models.PostQuery{Keyword: term, NewestFirst: true})
}

// Get возвращает пост или ошибку apperr.ErrNotFound
func (s *Service) Get(ctx context.Context, id string) (*models.Post, error) {
	return s.store.GetPostByID(ctx, id)
}

// Create создаёт пост от имени actor
func (s *Service) Create(ctx context.Context, actor *models.Identity, fields models.PostFields) (models.Post, error) {
	if err := policy.CanWrite(actor); err != nil {
		return models.Post{}, err
	}
	fields.Title = strings.TrimSpace(fields.Title)
	if err := s.validate.Struct(fields); err != nil {
		return models.Post{}, apperr.Invalid(err.Error())
	}

	now := s.now().UTC()
	content := richtext.Sanitize(fields.Content)
	post := models.Post{
		Title:      fields.Title,
		Content:    content,
		Author:     actor.Email,
		Categories: uniq(fields.Categories),
		CreatedAt:  now,
		UpdatedAt:  now,
		LikesCount: 0,
		LikedBy:    []string{},
		Keywords:   Keywords(fields.Title, content, fields.Keywords),
	}

	created, err := s.store.CreatePost(ctx, post)
	if err != nil {
		s.writeFailed("create", err, logrus.Fields{"author": actor.Email})
		return models.Post{}, err
	}
	s.log.WithFields(logrus.Fields{"post_id": created.ID, "author": created.Author}).Info("post created")
	return created, nil
}

// Update частично обновляет пост. Править может только автор.
// Если меняется заголовок или текст, ключевые слова строятся заново; добавленные
// автором слова сохраняются, пока патч не задаёт новые.
func (s *Service) Update(ctx context.Context, actor *models.Identity, id string, patch models.PostPatch) (*models.Post, error) {
	current, err := s.store.GetPostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanEditPost(actor, current); err != nil {
		s.log.WithFields(logrus.Fields{"post_id": id, "actor": identityOf(actor)}).Warn("update rejected")
		return nil, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := s.validate.Var(title, "required,max=300"); err != nil {
			return nil, apperr.Invalid("title: " + err.Error())
		}
		patch.Title = &title
	}
	if patch.Content != nil {
		content := richtext.Sanitize(*patch.Content)
		patch.Content = &content
	}
	if patch.Categories != nil {
		if err := s.validate.Var(*patch.Categories, "dive,required"); err != nil {
			return nil, apperr.Invalid("categories: " + err.Error())
		}
		categories := uniq(*patch.Categories)
		patch.Categories = &categories
	}
	if patch.Title != nil || patch.Content != nil || patch.Keywords != nil {
		title, content := current.Title, current.Content
		if patch.Title != nil {
			title = *patch.Title
		}
		if patch.Content != nil {
			content = *patch.Content
		}
		extra := ExtraKeywords(*current)
		if patch.Keywords != nil {
			extra = *patch.Keywords
		}
		keywords := Keywords(title, content, extra)
		patch.Keywords = &keywords
	}
	patch.UpdatedAt = s.now().UTC()

	updated, err := s.store.UpdatePost(ctx, id, patch)
	if err != nil {
		s.writeFailed("update", err, logrus.Fields{"post_id": id})
		return nil, err
	}
	return updated, nil
}

// Delete удаляет пост. Удаление несуществующего поста - не ошибка.
func (s *Service) Delete(ctx context.Context, actor *models.Identity, id string) error {
	log := s.log.WithField("post_id", id)

	current, err := s.store.GetPostByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Info("delete of missing post ignored")
		return nil
	}
	if err != nil {
		return err
	}
	if err := policy.CanEditPost(actor, current); err != nil {
		log.WithField("actor", identityOf(actor)).Warn("delete rejected")
		return err
	}

	err = s.store.DeletePost(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Info("post already deleted")
		return nil
	}
	if err != nil {
		s.writeFailed("delete", err, logrus.Fields{"post_id": id})
		return err
	}
	log.Info("post deleted")
	return nil
}

func (s *Service) writeFailed(op string, err error, fields logrus.Fields) {
	metrics.RecordWriteFailure("post_" + op)
	s.log.WithError(err).WithFields(fields).Error("post " + op + " failed")
}

func identityOf(actor *models.Identity) string {
	if actor == nil {
		return ""
	}
	return actor.Email
}

func uniq(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
