package web

import (
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/categories"
	"github.com/MosinFAM/blog-posts/internal/comments"
	"github.com/MosinFAM/blog-posts/internal/likes"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/policy"
	"github.com/MosinFAM/blog-posts/internal/posts"
	"github.com/MosinFAM/blog-posts/internal/richtext"
	"github.com/MosinFAM/blog-posts/internal/session"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 02, 2006 at 15:04")
		},
		"content": func(s string) template.HTML {
			return template.HTML(richtext.Sanitize(s))
		},
		"join": func(values []string) string {
			return strings.Join(values, ", ")
		},
		"excerpt": func(s string) string {
			text := richtext.PlainText(s)
			if r := []rune(text); len(r) > 200 {
				return string(r[:200]) + "…"
			}
			return text
		},
	}).ParseFS(templatesFS, "templates/*.html")
}

// pageData - данные для шаблонов страниц
type pageData struct {
	Title      string
	Session    *session.Session
	Error      string
	Notice     string
	Heading    string
	Query      string
	Next       string
	Posts      []models.Post
	Post       *models.Post
	Like       string
	CanEdit    bool
	Comments   []models.Comment
	Draft      string
	Categories []models.Category
	Names      map[string]string
	Selected   *categories.Selector
	Form       models.PostFields
	Editing    bool
}

func (s *Server) render(c *gin.Context, status int, name string, data pageData) {
	if data.Session == nil {
		data.Session = currentSession(c)
	}
	c.HTML(status, name, data)
}

// categoryNames подгружает названия категорий; ошибка справочника не ломает страницу
func (s *Server) categoryNames(c *gin.Context) ([]models.Category, map[string]string) {
	list, err := s.deps.Categories.Load(c.Request.Context())
	if err != nil {
		return nil, map[string]string{}
	}
	names := make(map[string]string, len(list))
	for _, cat := range list {
		names[cat.ID] = cat.Name
	}
	return list, names
}

// renderList рендерит ленту постов. Ошибка чтения показывается на странице.
func (s *Server) renderList(c *gin.Context, data pageData, q, category, author string) {
	list, err := s.listPosts(c, q, category, author)
	if err != nil {
		data.Error = userMessage(err)
	}
	data.Posts = list
	data.Categories, data.Names = s.categoryNames(c)
	s.render(c, http.StatusOK, "list.html", data)
}

func (s *Server) pageHome(c *gin.Context) {
	s.renderList(c, pageData{Title: "Blog", Heading: "Latest posts"}, "", "", "")
}

func (s *Server) pageSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	data := pageData{Title: "Search", Heading: "Search", Query: q}
	if q == "" {
		data.Categories, data.Names = s.categoryNames(c)
		s.render(c, http.StatusOK, "list.html", data)
		return
	}
	data.Heading = "Posts tagged “" + q + "”"
	s.renderList(c, data, q, "", "")
}

func (s *Server) pageCategory(c *gin.Context) {
	id := c.Param("categoryId")
	_, names := s.categoryNames(c)
	heading := "Category"
	if name, ok := names[id]; ok {
		heading = name
	}
	s.renderList(c, pageData{Title: heading, Heading: heading}, "", id, "")
}

func (s *Server) pageDashboard(c *gin.Context) {
	me := currentSession(c).Identity
	s.renderList(c, pageData{Title: "Dashboard", Heading: "My posts"}, "", "", me.Email)
}

func (s *Server) pageProfile(c *gin.Context) {
	data := pageData{Title: "Profile"}
	list, err := s.listPosts(c, "", "", currentSession(c).Identity.Email)
	if err != nil {
		data.Error = userMessage(err)
	}
	data.Posts = list
	s.render(c, http.StatusOK, "profile.html", data)
}

// loadPostPage собирает данные страницы поста
func (s *Server) loadPostPage(c *gin.Context, id string) (pageData, int) {
	sess := currentSession(c)
	data := pageData{Title: "Post"}

	post, err := s.deps.Posts.Get(c.Request.Context(), id)
	if err != nil {
		status, _ := statusOf(err)
		data.Error = userMessage(err)
		return data, status
	}
	data.Title = post.Title
	data.Post = post
	data.Like = likes.NewView(*post, sess.Identity).State().String()
	data.CanEdit = policy.CanEditPost(sess.Identity, post) == nil
	data.Categories, data.Names = s.categoryNames(c)

	list, err := s.deps.Comments.List(c.Request.Context(), id)
	if err != nil {
		data.Error = userMessage(err)
	}
	data.Comments = list
	return data, http.StatusOK
}

func (s *Server) pagePost(c *gin.Context) {
	data, status := s.loadPostPage(c, c.Param("id"))
	if status == http.StatusNotFound {
		s.render(c, status, "notfound.html", data)
		return
	}
	s.render(c, status, "post.html", data)
}

// formComment отправляет комментарий из формы. При ошибке черновик возвращается в форму.
func (s *Server) formComment(c *gin.Context) {
	id := c.Param("id")
	composer := comments.NewComposer(s.deps.Comments, id)
	composer.SetDraft(c.PostForm("content"))

	var err error
	if composer.CanSubmit() {
		_, err = composer.Submit(c.Request.Context(), currentSession(c).Identity)
	} else {
		err = apperr.ErrEmptyComment
	}
	if err == nil {
		c.Redirect(http.StatusSeeOther, "/post/"+id+"#comments")
		return
	}

	data, status := s.loadPostPage(c, id)
	if status != http.StatusOK {
		s.render(c, status, "notfound.html", data)
		return
	}
	data.Error = userMessage(err)
	data.Draft = composer.Draft()
	s.render(c, http.StatusUnprocessableEntity, "post.html", data)
}

func (s *Server) formLike(c *gin.Context) {
	id := c.Param("id")
	if !currentSession(c).Authenticated() {
		c.Redirect(http.StatusSeeOther, "/login?next=/post/"+id)
		return
	}
	if _, err := s.deps.Likes.ToggleFor(c.Request.Context(), id, currentSession(c).Identity); err != nil {
		s.log.WithError(err).WithField("post_id", id).Warn("like from page failed")
	}
	c.Redirect(http.StatusSeeOther, "/post/"+id)
}

func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/dashboard"
	}
	return next
}

func (s *Server) pageLogin(c *gin.Context) {
	data := pageData{Title: "Log in", Next: c.Query("next")}
	if code := c.Query("error"); code != "" {
		data.Error = loginErrorText(code)
	}
	s.render(c, http.StatusOK, "login.html", data)
}

func (s *Server) pageSignup(c *gin.Context) {
	s.render(c, http.StatusOK, "signup.html", pageData{Title: "Sign up", Next: c.Query("next")})
}

func (s *Server) formLogin(c *gin.Context) {
	s.formAuth(c, "login.html", "Log in", func(m *session.Manager, email, password string) error {
		return m.Login(c.Request.Context(), email, password)
	})
}

func (s *Server) formSignup(c *gin.Context) {
	s.formAuth(c, "signup.html", "Sign up", func(m *session.Manager, email, password string) error {
		return m.Signup(c.Request.Context(), email, password)
	})
}

func (s *Server) formAuth(c *gin.Context, tmpl, title string, do func(m *session.Manager, email, password string) error) {
	next := c.PostForm("next")
	var req credentials
	if err := c.ShouldBind(&req); err != nil {
		s.render(c, http.StatusUnprocessableEntity, tmpl, pageData{Title: title, Next: next, Error: "Email and password are required."})
		return
	}

	m := s.manager(c)
	defer m.Close()

	err := do(m, req.Email, req.Password)
	if err == nil {
		_, err = s.signIn(c, m.Token())
	}
	if err != nil {
		s.render(c, http.StatusUnprocessableEntity, tmpl, pageData{Title: title, Next: next, Error: userMessage(err)})
		return
	}
	c.Redirect(http.StatusSeeOther, safeNext(next))
}

func (s *Server) formLogout(c *gin.Context) {
	m := s.manager(c)
	defer m.Close()
	if err := m.Logout(c.Request.Context()); err != nil {
		s.log.WithError(err).Warn("logout failed")
	}
	s.setCookie(c, sessionCookie, "", -1)
	c.Redirect(http.StatusSeeOther, "/")
}

// postForm читает форму поста. Кнопка toggle переключает категорию и возвращает форму без сохранения.
func (s *Server) postForm(c *gin.Context) (models.PostFields, *categories.Selector, bool) {
	fields := models.PostFields{
		Title:   c.PostForm("title"),
		Content: c.PostForm("content"),
	}
	selector := categories.NewSelector(c.PostFormArray("categories"), func(ids []string) { fields.Categories = ids })
	fields.Categories = selector.Selected()

	toggle := c.PostForm("toggle")
	if toggle != "" {
		selector.Toggle(toggle)
	}
	if kw := strings.TrimSpace(c.PostForm("keywords")); kw != "" {
		fields.Keywords = strings.Fields(strings.ReplaceAll(kw, ",", " "))
	}
	return fields, selector, toggle != ""
}

func (s *Server) renderPostForm(c *gin.Context, status int, data pageData) {
	data.Categories, data.Names = s.categoryNames(c)
	if data.Selected == nil {
		data.Selected = categories.NewSelector(data.Form.Categories, nil)
	}
	s.render(c, status, "post_form.html", data)
}

func (s *Server) pageCreatePost(c *gin.Context) {
	s.renderPostForm(c, http.StatusOK, pageData{Title: "New post"})
}

func (s *Server) formCreatePost(c *gin.Context) {
	fields, selector, toggled := s.postForm(c)
	data := pageData{Title: "New post", Form: fields, Selected: selector}
	if toggled {
		s.renderPostForm(c, http.StatusOK, data)
		return
	}

	post, err := s.deps.Posts.Create(c.Request.Context(), currentSession(c).Identity, fields)
	if err != nil {
		data.Error = userMessage(err)
		s.renderPostForm(c, http.StatusUnprocessableEntity, data)
		return
	}
	c.Redirect(http.StatusSeeOther, "/post/"+post.ID)
}

func (s *Server) pageEditPost(c *gin.Context) {
	post, err := s.deps.Posts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, _ := statusOf(err)
		s.render(c, status, "notfound.html", pageData{Title: "Not found", Error: userMessage(err)})
		return
	}
	if err := policy.CanEditPost(currentSession(c).Identity, post); err != nil {
		c.Redirect(http.StatusSeeOther, "/post/"+post.ID)
		return
	}
	s.renderPostForm(c, http.StatusOK, pageData{
		Title:   "Edit post",
		Post:    post,
		Editing: true,
		Form: models.PostFields{
			Title:      post.Title,
			Content:    post.Content,
			Categories: post.Categories,
			Keywords:   posts.ExtraKeywords(*post),
		},
	})
}

func (s *Server) formEditPost(c *gin.Context) {
	id := c.Param("id")
	fields, selector, toggled := s.postForm(c)
	data := pageData{Title: "Edit post", Form: fields, Selected: selector, Editing: true, Post: &models.Post{ID: id}}
	if toggled {
		s.renderPostForm(c, http.StatusOK, data)
		return
	}

	// форма редактирования всегда содержит поле keywords: пустое значение снимает слова автора
	keywords := fields.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	patch := models.PostPatch{Title: &fields.Title, Content: &fields.Content, Categories: &fields.Categories, Keywords: &keywords}
	if _, err := s.deps.Posts.Update(c.Request.Context(), currentSession(c).Identity, id, patch); err != nil {
		data.Error = userMessage(err)
		s.renderPostForm(c, http.StatusUnprocessableEntity, data)
		return
	}
	c.Redirect(http.StatusSeeOther, "/post/"+id)
}

func (s *Server) formDeletePost(c *gin.Context) {
	if err := s.deps.Posts.Delete(c.Request.Context(), currentSession(c).Identity, c.Param("id")); err != nil {
		c.Redirect(http.StatusSeeOther, "/post/"+c.Param("id"))
		return
	}
	c.Redirect(http.StatusSeeOther, "/dashboard")
}
