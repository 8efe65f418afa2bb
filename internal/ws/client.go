package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paiban/medsched/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client 一个订阅连接
type Client struct {
	RunID string
	conn  *websocket.Conn
	hub   *Hub
	send  chan []byte
}

// incoming 客户端消息，目前只处理 ping
type incoming struct {
	Type string `json:"type"`
}

// NewClient 创建连接
func NewClient(runID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		RunID: runID,
		conn:  conn,
		hub:   hub,
		send:  make(chan []byte, 64),
	}
}

// ReadPump 读取客户端消息直到连接关闭
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithComponent("ws").Warn().Err(err).Str("run_id", c.RunID).Msg("连接异常关闭")
			}
			return
		}

		var msg incoming
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(map[string]string{
				"type":      "pong",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			c.trySend(pong)
		}
	}
}

// trySend 连接可能已被 Hub 关闭
func (c *Client) trySend(data []byte) {
	defer func() { _ = recover() }()
	select {
	case c.send <- data:
	default:
	}
}

// WritePump 把 Hub 分发的消息写到连接，send 关闭后发送关闭帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
