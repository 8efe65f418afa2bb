package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paiban/medsched/internal/runmanager"
	"github.com/paiban/medsched/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RunLookup 查询任务快照
type RunLookup func(ctx context.Context, id string) (runmanager.Run, error)

// Serve 升级连接并订阅任务事件
//
// 任务不存在时返回错误且不升级连接，由调用方写错误响应。
// 连接建立后先推送一次当前快照；任务已结束则推送终态后关闭。
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, runID string, lookup RunLookup) error {
	run, err := lookup(r.Context(), runID)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("ws").Warn().Err(err).Str("run_id", runID).Msg("websocket 升级失败")
		return nil
	}

	c := NewClient(runID, conn, h)
	if data, err := encode(snapshot(run)); err == nil {
		c.send <- data
	}

	if run.Status.Terminal() || !h.Register(c) {
		close(c.send)
		go c.WritePump()
		return nil
	}
	go c.WritePump()
	go c.ReadPump()

	// 快照与登记之间任务可能已经结束
	if latest, err := lookup(context.Background(), runID); err == nil && latest.Status.Terminal() {
		_ = h.Notify(context.Background(), snapshot(latest))
	}
	return nil
}

func snapshot(run runmanager.Run) runmanager.Event {
	kind := runmanager.EventStatus
	if run.Status.Terminal() {
		kind = runmanager.EventFinished
	}
	return runmanager.Event{Kind: kind, Run: run, At: time.Now()}
}
