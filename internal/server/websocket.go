package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"bazaar/internal/database"
	"bazaar/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// feedHub fans recorded actions out to every connected websocket client.
// Slow clients drop messages rather than stall the action path.
type feedHub struct {
	mu      sync.Mutex
	clients map[*feedClient]struct{}
	metrics *monitoring.Metrics
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newFeedHub(metrics *monitoring.Metrics) *feedHub {
	return &feedHub{
		clients: make(map[*feedClient]struct{}),
		metrics: metrics,
	}
}

// feedEvent is the wire form of one recorded action on the feed.
type feedEvent struct {
	ID       string `json:"id"`
	RowIndex int64  `json:"row_index"`
	AgentID  string `json:"agent_id"`
	Action   string `json:"action"`
	IsError  bool   `json:"is_error"`
}

// Broadcast sends the recorded action to every connected client.
func (h *feedHub) Broadcast(row database.ActionRow) {
	data, err := json.Marshal(feedEvent{
		ID:       row.ID,
		RowIndex: row.RowIndex,
		AgentID:  row.Data.AgentID,
		Action:   row.Data.Request.Name,
		IsError:  row.Data.Result.IsError,
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Debug().Msg("action feed buffer full, dropping event")
		}
	}
}

func (h *feedHub) add(client *feedClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClientConnected(1)
	}
}

func (h *feedHub) remove(client *feedClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if present && h.metrics != nil {
		h.metrics.WSClientConnected(-1)
	}
}

// handleActionFeed upgrades the connection and starts the read and write
// pumps.
func (s *Server) handleActionFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &feedClient{conn: conn, send: make(chan []byte, 256)}
	s.hub.add(client)

	go client.writePump()
	go client.readPump(s.hub)
}

// readPump drains inbound frames until the peer disconnects. The feed is
// one-way; inbound payloads are discarded.
func (c *feedClient) readPump(hub *feedHub) {
	defer func() {
		hub.remove(c)
		c.conn.Close()
		close(c.send)
	}()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("action feed client error")
			}
			return
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
