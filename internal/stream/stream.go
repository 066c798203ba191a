// Package stream - отменяемая подписка на последовательность снимков.
//
// Stream доставляет значения в порядке отправки. Если читатель не успевает,
// самое старое непрочитанное значение вытесняется: каждый снимок полностью
// заменяет предыдущий, поэтому потребителю важен только последний.
package stream

import "sync"

// Stream - подписка с явной отменой. Close безопасно вызывать многократно.
type Stream[T any] struct {
	mu      sync.Mutex
	ch      chan T
	done    chan struct{}
	closed  bool
	once    sync.Once
	onClose func()
}

// New создаёт поток с буфером size (минимум 1). onClose вызывается ровно один раз.
func New[T any](size int, onClose func()) *Stream[T] {
	if size < 1 {
		size = 1
	}
	return &Stream[T]{
		ch:      make(chan T, size),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// C возвращает канал снимков. Канал закрывается после Close.
func (s *Stream[T]) C() <-chan T {
	return s.ch
}

// Done закрывается при отмене подписки
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Send кладёт значение в поток, не блокируясь. Возвращает false, если поток закрыт.
func (s *Stream[T]) Send(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for {
		select {
		case s.ch <- v:
			return true
		default:
		}
		// буфер полон: выбрасываем самый старый снимок
		select {
		case <-s.ch:
		default:
		}
	}
}

// Close отменяет подписку и освобождает ресурсы источника
func (s *Stream[T]) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		close(s.ch)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// Closed сообщает, была ли подписка отменена
func (s *Stream[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
