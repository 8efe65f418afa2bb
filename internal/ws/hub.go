// Package ws 通过 websocket 推送求解任务的进度事件
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/paiban/medsched/internal/runmanager"
	"github.com/paiban/medsched/pkg/logger"
)

// Hub 按任务ID维护订阅连接并分发事件
type Hub struct {
	// runID -> 订阅该任务的连接
	clients map[string]map[*Client]struct{}

	broadcast  chan runmanager.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan runmanager.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 主循环，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	log := logger.WithComponent("ws")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for runID, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, runID)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.RunID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.RunID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
			log.Debug().Str("run_id", c.RunID).Int("subscribers", len(set)).Msg("订阅建立")

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			data, err := encode(ev)
			if err != nil {
				log.Error().Err(err).Str("run_id", ev.Run.ID).Msg("序列化事件失败")
				continue
			}
			h.mu.Lock()
			for c := range h.clients[ev.Run.ID] {
				select {
				case c.send <- data:
				default:
					log.Warn().Str("run_id", ev.Run.ID).Msg("发送缓冲已满，断开订阅")
					h.remove(c)
					continue
				}
				// 终态事件之后不再有推送
				if ev.Kind == runmanager.EventFinished {
					h.remove(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove 调用方持有写锁
func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.RunID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.RunID)
	}
}

func encode(ev runmanager.Event) ([]byte, error) {
	ev.Run = ev.Run.Summary()
	return json.Marshal(ev)
}

// Name 旁路名
func (h *Hub) Name() string {
	return "websocket"
}

// Notify 把事件交给主循环分发；无订阅者时直接丢弃
func (h *Hub) Notify(ctx context.Context, ev runmanager.Event) error {
	if h.Subscribers(ev.Run.ID) == 0 {
		return nil
	}
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register 登记订阅；Hub 已停止时返回 false
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销订阅
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribers 某任务的订阅数
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[runID])
}

// ClientCount 总连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
