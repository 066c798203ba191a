// Package categories - справочник категорий и выбор категорий поста.
package categories

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/sirupsen/logrus"
)

// DefaultTTL - сколько загруженный список живёт в памяти процесса
const DefaultTTL = 30 * time.Second

// Directory загружает полный список категорий и держит его в памяти не дольше ttl,
// после чего снова читает кэш или хранилище. Неудачная загрузка не запоминается.
type Directory struct {
	store storage.Storage
	cache Cache
	log   logrus.FieldLogger
	ttl   time.Duration
	now   func() time.Time

	mu         sync.Mutex
	loadedAt   time.Time
	loaded     bool
	categories []models.Category
}

// NewDirectory создаёт справочник. cache может быть nil.
func NewDirectory(store storage.Storage, cache Cache, log logrus.FieldLogger) *Directory {
	return &Directory{
		store: store,
		cache: cache,
		log:   log.WithField("component", "categories"),
		ttl:   DefaultTTL,
		now:   time.Now,
	}
}

// WithTTL задаёт время жизни списка в памяти. Нулевое значение отключает запоминание.
func (d *Directory) WithTTL(ttl time.Duration) *Directory {
	d.mu.Lock()
	d.ttl = ttl
	d.mu.Unlock()
	return d
}

// Load возвращает список категорий. Пока запомненный список не устарел, бэкенд не опрашивается.
func (d *Directory) Load(ctx context.Context) ([]models.Category, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded && d.now().Sub(d.loadedAt) < d.ttl {
		return slices.Clone(d.categories), nil
	}

	if d.cache != nil {
		cached, err := d.cache.Get(ctx)
		if err != nil {
			d.log.WithError(err).Warn("category cache unavailable")
		}
		if cached != nil {
			d.remember(cached)
			return slices.Clone(cached), nil
		}
	}

	categories, err := d.store.GetCategories(ctx)
	if err != nil {
		d.log.WithError(err).Error("load categories")
		return nil, err
	}
	if categories == nil {
		categories = []models.Category{}
	}
	if d.cache != nil {
		if err := d.cache.Set(ctx, categories); err != nil {
			d.log.WithError(err).Warn("fill category cache")
		}
	}
	d.remember(categories)
	return slices.Clone(categories), nil
}

func (d *Directory) remember(categories []models.Category) {
	d.categories = slices.Clone(categories)
	d.loaded = true
	d.loadedAt = d.now()
}

// Names - отображение ID в название для вывода
func (d *Directory) Names(ctx context.Context) (map[string]string, error) {
	categories, err := d.Load(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}

// Seed добавляет недостающие категории и сбрасывает закэшированный список.
// Возвращает число добавленных.
func (d *Directory) Seed(ctx context.Context, names []string) (int, error) {
	added := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		_, err := d.store.AddCategory(ctx, name)
		if errors.Is(err, apperr.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}

	d.mu.Lock()
	d.loaded = false
	d.categories = nil
	d.mu.Unlock()

	if d.cache != nil {
		if err := d.cache.Invalidate(ctx); err != nil {
			d.log.WithError(err).Warn("invalidate category cache")
		}
	}
	d.log.WithField("added", added).Info("categories seeded")
	return added, nil
}

// Selector - выбор множества категорий. Каждое изменение сообщается через onChange.
type Selector struct {
	selected []string
	onChange func([]string)
}

func NewSelector(initial []string, onChange func([]string)) *Selector {
	s := &Selector{onChange: onChange}
	for _, id := range initial {
		if !slices.Contains(s.selected, id) {
			s.selected = append(s.selected, id)
		}
	}
	return s
}

// Toggle добавляет id в выбор или убирает из него
func (s *Selector) Toggle(id string) {
	if i := slices.Index(s.selected, id); i >= 0 {
		s.selected = slices.Delete(s.selected, i, i+1)
	} else {
		s.selected = append(s.selected, id)
	}
	if s.onChange != nil {
		s.onChange(s.Selected())
	}
}

func (s *Selector) IsSelected(id string) bool {
	return slices.Contains(s.selected, id)
}

func (s *Selector) Selected() []string {
	out := slices.Clone(s.selected)
	if out == nil {
		out = []string{}
	}
	return out
}
