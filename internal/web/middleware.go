package web

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	clientCookie  = "blog_client"
	sessionCookie = "blog_session"
)

// sessionMiddleware кладёт в контекст запроса session.Session: ID клиента из
// cookie (выдаётся при первом запросе) и identity по токену из cookie или
// заголовка Authorization.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, err := c.Cookie(clientCookie)
		if err != nil || clientID == "" {
			clientID = uuid.New().String()
			s.setCookie(c, clientCookie, clientID, 365*24*time.Hour)
		}

		token, fromCookie := "", false
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else if v, err := c.Cookie(sessionCookie); err == nil {
			token, fromCookie = v, true
		}

		sess := &session.Session{ClientID: clientID, Token: token}
		if token != "" {
			identity, err := s.deps.Auth.Authenticate(c.Request.Context(), token)
			switch {
			case err == nil:
				sess.Identity = identity
			case apperr.IsAuth(err, apperr.Unauthenticated):
				if fromCookie {
					s.setCookie(c, sessionCookie, "", -1)
				}
				sess.Token = ""
			default:
				s.log.WithError(err).Warn("resolve session")
			}
		}

		c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), sess))
		c.Next()
	}
}

func (s *Server) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", s.opts.SecureCookies, true)
}

func currentSession(c *gin.Context) *session.Session {
	return session.FromContext(c.Request.Context())
}

// requireIdentity отвечает 401 анонимным запросам к API записи
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentSession(c).Authenticated() {
			writeError(c, apperr.Auth(apperr.Unauthenticated, nil))
			return
		}
		c.Next()
	}
}

// privatePage отправляет анонимного посетителя на /login с возвратом на исходную страницу
func privatePage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentSession(c).Authenticated() {
			c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// rateLimiter ограничивает частоту запросов на запись. Ключ - email вошедшего
// пользователя, для анонимных запросов - IP клиента. Лимитеры, к которым давно
// не обращались, удаляются.
type rateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 10 * time.Minute

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     limiterIdleTTL,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	now := r.now()
	if now.Sub(r.lastSweep) >= r.idle {
		r.sweep(now)
	}
	e, ok := r.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = e
	}
	e.lastSeen = now
	r.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// sweep удаляет лимитеры, простаивающие дольше idle. Вызывается под r.mu.
func (r *rateLimiter) sweep(now time.Time) {
	for key, e := range r.limiters {
		if now.Sub(e.lastSeen) >= r.idle {
			delete(r.limiters, key)
		}
	}
	r.lastSweep = now
}

// size - число отслеживаемых ключей
func (r *rateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

func limiterKey(c *gin.Context) string {
	if sess := currentSession(c); sess.Authenticated() {
		return "user:" + sess.Identity.Email
	}
	return "ip:" + c.ClientIP()
}

func (r *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.limit <= 0 {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if !r.allow(limiterKey(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "too many requests", Code: "rate_limited"})
			return
		}
		c.Next()
	}
}
