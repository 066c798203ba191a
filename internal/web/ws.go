package web

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MosinFAM/blog-posts/internal/comments"
	"github.com/MosinFAM/blog-posts/internal/models"
	"github.com/MosinFAM/blog-posts/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// clientMessage - сообщение клиента в канале комментариев
type clientMessage struct {
	Type   string `json:"type"`
	PostID string `json:"postId"`
}

type commentsMessage struct {
	Type     string           `json:"type"`
	PostID   string           `json:"postId"`
	Comments []models.Comment `json:"comments"`
}

type sessionMessage struct {
	Type     string           `json:"type"`
	Identity *models.Identity `json:"identity"`
	Loading  bool             `json:"loading"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// readPump читает сообщения клиента, пока соединение живо. Возвращается при ошибке чтения.
func readPump(conn *websocket.Conn, log logrus.FieldLogger, handle func([]byte)) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("websocket read error")
			}
			return
		}
		if handle != nil {
			handle(data)
		}
	}
}

// writePump отправляет значения из out как JSON и пингует клиента.
// Закрытие out завершает соединение.
func writePump[T any](conn *websocket.Conn, out <-chan T, direct <-chan any, encode func(T) any) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case v, ok := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(encode(v)); err != nil {
				return
			}
		case msg := <-direct:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsComments - живая лента комментариев. Пост задаётся параметром post
// и переключается сообщением {"type":"open","postId":"..."}.
func (s *Server) wsComments(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("failed to upgrade connection")
		return
	}
	log := s.log.WithField("channel", "comments")

	ctx, cancel := context.WithCancel(context.Background())
	feed := comments.NewFeed(s.deps.Comments)
	direct := make(chan any, 4)
	defer func() {
		feed.Close()
		cancel()
	}()

	open := func(postID string) {
		if postID == "" {
			return
		}
		if err := feed.Open(ctx, postID); err != nil {
			log.WithError(err).WithField("post_id", postID).Warn("open comment feed")
			select {
			case direct <- errorMessage{Type: "error", Error: userMessage(err)}:
			default:
			}
		}
	}

	go writePump(conn, feed.Snapshots(), direct, func(snap comments.Snapshot) any {
		return commentsMessage{Type: "comments", PostID: snap.PostID, Comments: snap.Comments}
	})

	open(c.Query("post"))
	readPump(conn, log, func(data []byte) {
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithError(err).Debug("invalid message")
			return
		}
		switch msg.Type {
		case "open":
			open(msg.PostID)
		default:
			log.WithField("type", msg.Type).Debug("unknown message type")
		}
	})
}

// wsSession - push изменений состояния аутентификации клиента
func (s *Server) wsSession(c *gin.Context) {
	sess := currentSession(c)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("failed to upgrade connection")
		return
	}

	m := session.NewManager(context.Background(), s.deps.Auth, sess.ClientID, sess.Token, s.log)
	sub := m.Subscribe()
	defer m.Close()

	go writePump(conn, sub.C(), nil, func(st session.State) any {
		return sessionMessage{Type: "session", Identity: st.Identity, Loading: st.Loading}
	})
	readPump(conn, s.log.WithField("channel", "session"), nil)
}
