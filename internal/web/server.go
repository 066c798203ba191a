// Package web - HTTP-слой блога: страницы, JSON API, websocket-каналы и метрики.
package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MosinFAM/blog-posts/internal/auth"
	"github.com/MosinFAM/blog-posts/internal/categories"
	"github.com/MosinFAM/blog-posts/internal/comments"
	"github.com/MosinFAM/blog-posts/internal/likes"
	"github.com/MosinFAM/blog-posts/internal/logger"
	"github.com/MosinFAM/blog-posts/internal/media"
	"github.com/MosinFAM/blog-posts/internal/metrics"
	"github.com/MosinFAM/blog-posts/internal/posts"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Deps - сервисы, которые обслуживает HTTP-слой
type Deps struct {
	Auth       *auth.Service
	Posts      *posts.Service
	Likes      *likes.Toggler
	Comments   *comments.Service
	Categories *categories.Directory
	Uploader   *media.Uploader
}

// Options - настройки HTTP-слоя
type Options struct {
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
	SecureCookies  bool
	// TrustedProxies - адреса прокси, которым доверяется X-Forwarded-For; пусто - IP берётся из соединения
	TrustedProxies []string
	MaxUploadBytes int64
	// MediaRoot и MediaPrefix задают раздачу загруженных файлов с диска; пустой MediaRoot отключает раздачу
	MediaRoot   string
	MediaPrefix string
}

type Server struct {
	deps     Deps
	opts     Options
	log      logrus.FieldLogger
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

func NewServer(deps Deps, opts Options, log logrus.FieldLogger) (*Server, error) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.MediaRoot != "" {
		if opts.MediaPrefix == "" {
			opts.MediaPrefix = "/media"
		}
		if !strings.HasPrefix(opts.MediaPrefix, "/") || strings.ContainsAny(opts.MediaPrefix, ":*?#") {
			return nil, fmt.Errorf("media prefix must be a path, got %q", opts.MediaPrefix)
		}
	}
	s := &Server{
		deps: deps,
		opts: opts,
		log:  log.WithField("component", "web"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.SetHTMLTemplate(tmpl)
	r.Use(gin.Recovery(), logger.Middleware(s.log), metrics.Middleware(), s.sessionMiddleware())
	r.Use(newRateLimiter(opts.RateLimit, opts.RateBurst).middleware())
	s.engine = r
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if s.opts.MediaRoot != "" {
		r.Static(s.opts.MediaPrefix, s.opts.MediaRoot)
	}

	api := r.Group("/api")
	{
		a := api.Group("/auth")
		a.POST("/signup", s.apiSignup)
		a.POST("/login", s.apiLogin)
		a.POST("/logout", s.apiLogout)
		a.GET("/google", s.googleBegin)
		a.GET("/google/callback", s.googleCallback)
		a.GET("/me", s.apiMe)

		api.GET("/posts", s.apiListPosts)
		api.GET("/posts/:id", s.apiGetPost)
		api.GET("/posts/:id/comments", s.apiListComments)
		api.GET("/categories", s.apiCategories)
		api.POST("/editor/commands", s.apiEditorCommand)

		w := api.Group("", requireIdentity())
		w.POST("/posts", s.apiCreatePost)
		w.PATCH("/posts/:id", s.apiUpdatePost)
		w.DELETE("/posts/:id", s.apiDeletePost)
		w.POST("/posts/:id/like", s.apiToggleLike)
		w.POST("/posts/:id/comments", s.apiPostComment)
		w.POST("/uploads", s.apiUpload)
	}

	r.GET("/ws/comments", s.wsComments)
	r.GET("/ws/session", s.wsSession)

	r.GET("/", s.pageHome)
	r.GET("/post/:id", s.pagePost)
	r.POST("/post/:id/comments", s.formComment)
	r.POST("/post/:id/like", s.formLike)
	r.GET("/login", s.pageLogin)
	r.POST("/login", s.formLogin)
	r.GET("/signup", s.pageSignup)
	r.POST("/signup", s.formSignup)
	r.POST("/logout", s.formLogout)
	r.GET("/search", s.pageSearch)
	r.GET("/category/:categoryId", s.pageCategory)

	private := r.Group("", privatePage())
	private.GET("/dashboard", s.pageDashboard)
	private.GET("/create-post", s.pageCreatePost)
	private.POST("/create-post", s.formCreatePost)
	private.GET("/edit-post/:id", s.pageEditPost)
	private.POST("/edit-post/:id", s.formEditPost)
	private.POST("/edit-post/:id/delete", s.formDeletePost)
	private.GET("/profile", s.pageProfile)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, errorResponse{Error: "no such endpoint", Code: "not_found"})
			return
		}
		s.render(c, http.StatusNotFound, "notfound.html", pageData{Title: "Not found"})
	})
}

// Handler - корневой обработчик с CORS
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
	}).Handler(s.engine)
}
