package web

import (
	"net/http"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/likes"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/richtext"
	"github.com/MosinFAM/blog-posts/internal/session"
	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/gin-gonic/gin"
)

type credentials struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type identityResponse struct {
	Identity *models.Identity `json:"identity"`
}

// manager открывает менеджер сессии клиента на время запроса
func (s *Server) manager(c *gin.Context) *session.Manager {
	sess := currentSession(c)
	return session.NewManager(c.Request.Context(), s.deps.Auth, sess.ClientID, sess.Token, s.log)
}

// signIn выставляет cookie сессии и возвращает identity нового токена
func (s *Server) signIn(c *gin.Context, token string) (*models.Identity, error) {
	identity, err := s.deps.Auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		return nil, err
	}
	s.setCookie(c, sessionCookie, token, 0)
	return identity, nil
}

func (s *Server) apiSignup(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid(err.Error()))
		return
	}
	m := s.manager(c)
	defer m.Close()

	if err := m.Signup(c.Request.Context(), req.Email, req.Password); err != nil {
		writeError(c, err)
		return
	}
	identity, err := s.signIn(c, m.Token())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"identity": identity, "token": m.Token()})
}

func (s *Server) apiLogin(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid(err.Error()))
		return
	}
	m := s.manager(c)
	defer m.Close()

	if err := m.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		writeError(c, err)
		return
	}
	identity, err := s.signIn(c, m.Token())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity, "token": m.Token()})
}

func (s *Server) apiLogout(c *gin.Context) {
	m := s.manager(c)
	defer m.Close()

	if err := m.Logout(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	s.setCookie(c, sessionCookie, "", -1)
	c.Status(http.StatusNoContent)
}

func (s *Server) apiMe(c *gin.Context) {
	c.JSON(http.StatusOK, identityResponse{Identity: currentSession(c).Identity})
}

// googleBegin отправляет браузер на страницу согласия Google
func (s *Server) googleBegin(c *gin.Context) {
	g := s.deps.Auth.Google()
	if g == nil {
		writeError(c, apperr.NotFound("login provider", "google"))
		return
	}
	consentURL, err := g.Begin(currentSession(c).ClientID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, consentURL)
}

func (s *Server) googleCallback(c *gin.Context) {
	m := s.manager(c)
	defer m.Close()

	err := m.GoogleLogin(c.Request.Context(), c.Query("code"), c.Query("state"), c.Query("error"))
	if err == nil {
		_, err = s.signIn(c, m.Token())
	}
	if err != nil {
		_, code := statusOf(err)
		c.Redirect(http.StatusFound, "/login?error="+code)
		return
	}
	c.Redirect(http.StatusFound, "/dashboard")
}

// postResponse - пост с состоянием лайка для текущего зрителя
type postResponse struct {
	models.Post
	Like string `json:"like"`
}

func newPostResponse(post models.Post, viewer *models.Identity) postResponse {
	return postResponse{Post: post, Like: likes.NewView(post, viewer).State().String()}
}

// listPosts выбирает посты по фильтрам запроса: q, затем category, затем author
func (s *Server) listPosts(c *gin.Context, q, category, author string) ([]models.Post, error) {
	ctx := c.Request.Context()
	var (
		it  storage.PostIterator
		err error
	)
	switch {
	case q != "":
		it, err = s.deps.Posts.ListByKeyword(ctx, q)
	case category != "":
		it, err = s.deps.Posts.ListByCategory(ctx, category)
	case author != "":
		it, err = s.deps.Posts.ListByAuthor(ctx, author)
	default:
		it, err = s.deps.Posts.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	return storage.Collect(it)
}

func (s *Server) apiListPosts(c *gin.Context) {
	list, err := s.listPosts(c, c.Query("q"), c.Query("category"), c.Query("author"))
	if err != nil {
		writeError(c, err)
		return
	}
	viewer := currentSession(c).Identity
	out := make([]postResponse, 0, len(list))
	for _, p := range list {
		out = append(out, newPostResponse(p, viewer))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) apiGetPost(c *gin.Context) {
	post, err := s.deps.Posts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPostResponse(*post, currentSession(c).Identity))
}

func (s *Server) apiCreatePost(c *gin.Context) {
	var fields models.PostFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		writeError(c, apperr.Invalid(err.Error()))
		return
	}
	post, err := s.deps.Posts.Create(c.Request.Context(), currentSession(c).Identity, fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) apiUpdatePost(c *gin.Context) {
	var patch models.PostPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, apperr.Invalid(err.Error()))
		return
	}
	if patch.Empty() {
		writeError(c, apperr.Invalid("nothing to update"))
		return
	}
	post, err := s.deps.Posts.Update(c.Request.Context(), currentSession(c).Identity, c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) apiDeletePost(c *gin.Context) {
	if err := s.deps.Posts.Delete(c.Request.Context(), currentSession(c).Identity, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) apiToggleLike(c *gin.Context) {
	state, err := s.deps.Likes.ToggleFor(c.Request.Context(), c.Param("id"), currentSession(c).Identity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) apiListComments(c *gin.Context) {
	list, err := s.deps.Comments.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type commentRequest struct {
	Content string `json:"content" form:"content"`
}

func (s *Server) apiPostComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid(err.Error()))
		return
	}
	comment, err := s.deps.Comments.Post(c.Request.Context(), currentSession(c).Identity, c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) apiCategories(c *gin.Context) {
	list, err := s.deps.Categories.Load(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) apiUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		writeError(c, apperr.Invalid("multipart field \"file\" is required"))
		return
	}
	if header.Size > s.opts.MaxUploadBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "file is too large", Code: "too_large"})
		return
	}
	file, err := header.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer file.Close()

	owner := currentSession(c).Identity.Email
	url, err := s.deps.Uploader.Upload(c.Request.Context(), owner, header.Filename, file, header.Size, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

type editorRequest struct {
	Content string           `json:"content"`
	Command richtext.Command `json:"command"`
}

// apiEditorCommand применяет команду форматирования к документу клиента
func (s *Server) apiEditorCommand(c *gin.Context) {
	var req editorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid(err.Error()))
		return
	}
	content, err := richtext.Apply(req.Content, req.Command)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}
