package comments

import (
	"context"
	"strings"
	"sync"

	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/stream"
)

// Feed - лента комментариев открытого поста. При переключении на другой пост
// старая подписка закрывается до открытия новой, а её запоздавшие снимки отбрасываются.
type Feed struct {
	svc *Service
	out *stream.Stream[Snapshot]

	mu     sync.Mutex
	postID string
	sub    *stream.Stream[Snapshot]
	gen    uint64
	closed bool
}

func NewFeed(svc *Service) *Feed {
	return &Feed{svc: svc, out: stream.New[Snapshot](1, nil)}
}

// Snapshots - канал снимков текущего поста. Закрывается после Close.
func (f *Feed) Snapshots() <-chan Snapshot {
	return f.out.C()
}

// Current - ID открытого поста
func (f *Feed) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.postID
}

// Open переключает ленту на postID
func (f *Feed) Open(ctx context.Context, postID string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	old := f.sub
	f.sub = nil
	f.postID = postID
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}

	sub, err := f.svc.Subscribe(ctx, postID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.closed || f.gen != gen {
		f.mu.Unlock()
		sub.Close()
		return nil
	}
	f.sub = sub
	f.mu.Unlock()

	go f.pump(sub, gen)
	return nil
}

func (f *Feed) pump(sub *stream.Stream[Snapshot], gen uint64) {
	for snap := range sub.C() {
		f.mu.Lock()
		if f.gen == gen && snap.PostID == f.postID {
			f.out.Send(snap)
		}
		f.mu.Unlock()
	}
}

// Close закрывает текущую подписку и канал снимков
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	sub := f.sub
	f.sub = nil
	f.gen++
	f.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	f.out.Close()
}

// Composer хранит черновик комментария. При неудачной отправке черновик остаётся для повтора.
type Composer struct {
	svc    *Service
	postID string

	mu    sync.Mutex
	draft string
}

func NewComposer(svc *Service, postID string) *Composer {
	return &Composer{svc: svc, postID: postID}
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// CanSubmit - кнопка отправки активна только для непустого черновика
func (c *Composer) CanSubmit() bool {
	return strings.TrimSpace(c.Draft()) != ""
}

// Submit отправляет черновик. Черновик очищается только после успеха
// и только если его не успели изменить за время отправки.
func (c *Composer) Submit(ctx context.Context, actor *models.Identity) (*models.Comment, error) {
	content := c.Draft()
	comment, err := c.svc.Post(ctx, actor, c.postID, content)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.draft == content {
		c.draft = ""
	}
	c.mu.Unlock()
	return comment, nil
}
