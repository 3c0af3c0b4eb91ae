package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xhad/ragd/pkg/query"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsMessage struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// handleWebSocket streams query answers chunk by chunk. Each client
// message is a query; responses arrive as "stream" messages followed by
// a "done" message carrying the source URLs.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		s.streamAnswer(c, conn, msg.Content)
	}
}

func (s *Server) streamAnswer(c *gin.Context, conn *websocket.Conn, queryText string) {
	ctx := c.Request.Context()

	chunks, err := s.query.Retrieve(ctx, queryText)
	if err != nil {
		s.sendMessage(conn, wsMessage{Type: "error", Content: err.Error()})
		return
	}

	if len(chunks) == 0 {
		s.sendMessage(conn, wsMessage{Type: "stream", Content: query.NoGroundingAnswer})
		s.sendMessage(conn, wsMessage{Type: "done", Data: []string{}})
		return
	}

	err = s.chat.ComposeStream(ctx, queryText, chunks, func(chunk string) {
		s.sendMessage(conn, wsMessage{Type: "stream", Content: chunk})
	})
	if err != nil {
		s.sendMessage(conn, wsMessage{Type: "error", Content: err.Error()})
		return
	}

	s.sendMessage(conn, wsMessage{Type: "done", Data: query.Sources(chunks)})
}

func (s *Server) sendMessage(conn *websocket.Conn, msg wsMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Error("websocket write failed", zap.Error(err))
	}
}
