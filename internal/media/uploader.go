package media

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
	"sync"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/metrics"

	"github.com/sirupsen/logrus"
)

const imagesPrefix = "images/"

// Uploader загружает картинки под images/<имя файла>.
// Для одного владельца одновременно идёт не больше одной загрузки.
// Одинаковые имена файлов перезаписывают друг друга.
type Uploader struct {
	store ObjectStore
	log   logrus.FieldLogger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewUploader(store ObjectStore, log logrus.FieldLogger) *Uploader {
	return &Uploader{
		store:    store,
		log:      log.WithField("component", "media"),
		inflight: make(map[string]struct{}),
	}
}

// Uploading сообщает, идёт ли загрузка у owner
func (u *Uploader) Uploading(owner string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.inflight[owner]
	return ok
}

func (u *Uploader) begin(owner string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.inflight[owner]; ok {
		return false
	}
	u.inflight[owner] = struct{}{}
	return true
}

func (u *Uploader) end(owner string) {
	u.mu.Lock()
	delete(u.inflight, owner)
	u.mu.Unlock()
}

// Upload сохраняет файл и возвращает ссылку на него. onComplete (может быть nil)
// вызывается с этой же ссылкой после успешной загрузки. Повторов при ошибке нет.
func (u *Uploader) Upload(ctx context.Context, owner, filename string, r io.Reader, size int64, onComplete func(url string)) (string, error) {
	name := ObjectName(filename)
	if name == "" {
		return "", apperr.Invalid("file name is empty")
	}
	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if !strings.HasPrefix(contentType, "image/") || contentType == "image/svg+xml" {
		return "", apperr.Invalid("only images can be uploaded")
	}

	if !u.begin(owner) {
		return "", apperr.ErrUploadInProgress
	}
	defer u.end(owner)

	log := u.log.WithFields(logrus.Fields{"owner": owner, "object": name})
	if err := u.store.Put(ctx, name, r, size, contentType); err != nil {
		metrics.RecordUpload(false)
		log.WithError(err).Error("upload failed")
		return "", apperr.Network(err)
	}
	url, err := u.store.URL(ctx, name)
	if err != nil {
		metrics.RecordUpload(false)
		log.WithError(err).Error("resolve upload url")
		return "", apperr.Network(err)
	}

	metrics.RecordUpload(true)
	log.Info("image uploaded")
	if onComplete != nil {
		onComplete(url)
	}
	return url, nil
}

// ObjectName - путь объекта для исходного имени файла. Каталоги из имени отбрасываются.
func ObjectName(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	base := path.Base(path.Clean("/" + filename))
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return ""
	}
	return imagesPrefix + base
}
