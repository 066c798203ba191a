package auth

import (
	"sync"

	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/stream"
)

// State - состояние аутентификации клиента. Identity == nil - аноним.
type State struct {
	Identity *models.Identity `json:"identity"`
}

// Subscription - поток состояний одного клиента
type Subscription = stream.Stream[State]

// Hub рассылает состояния подпискам по clientID
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
	seq  map[string]uint64
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
		seq:  make(map[string]uint64),
	}
}

// Subscribe регистрирует подписку. Close подписки снимает её с учёта.
func (h *Hub) Subscribe(clientID string) *Subscription {
	sub, _ := h.subscribe(clientID)
	return sub
}

// subscribe дополнительно возвращает номер последней публикации для clientID
func (h *Hub) subscribe(clientID string) (*Subscription, uint64) {
	var sub *Subscription
	sub = stream.New[State](1, func() { h.remove(clientID, sub) })

	h.mu.Lock()
	set, ok := h.subs[clientID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[clientID] = set
	}
	set[sub] = struct{}{}
	seq := h.seq[clientID]
	h.mu.Unlock()
	return sub, seq
}

// sendIfCurrent отправляет st в sub, только если после seq для clientID ничего не публиковалось
func (h *Hub) sendIfCurrent(clientID string, seq uint64, sub *Subscription, st State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seq[clientID] != seq {
		return false
	}
	return sub.Send(st)
}

func (h *Hub) remove(clientID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[clientID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, clientID)
		delete(h.seq, clientID)
	}
}

// Publish отправляет состояние всем подпискам clientID
func (h *Hub) Publish(clientID string, st State) {
	if clientID == "" {
		return
	}
	h.mu.Lock()
	h.seq[clientID]++
	targets := make([]*Subscription, 0, len(h.subs[clientID]))
	for sub := range h.subs[clientID] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.Send(st)
	}
}

// Subscribers - число активных подписок clientID
func (h *Hub) Subscribers(clientID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[clientID])
}
