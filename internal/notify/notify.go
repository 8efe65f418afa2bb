// Package notify 通过 RabbitMQ 发布求解任务完成事件
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/paiban/medsched/internal/config"
	"github.com/paiban/medsched/internal/runmanager"
	apperrors "github.com/paiban/medsched/pkg/errors"
)

// Channel 用到的通道操作，*amqp.Channel 满足
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Completion 任务完成消息体
type Completion struct {
	RunID       string              `json:"run_id"`
	Status      runmanager.Status   `json:"status"`
	SolveStatus string              `json:"solve_status,omitempty"`
	Engine      string              `json:"engine,omitempty"`
	Solutions   int                 `json:"solutions"`
	Objective   *int64              `json:"best_objective,omitempty"`
	Degraded    bool                `json:"degraded"`
	Fallback    bool                `json:"fallback"`
	Error       *apperrors.AppError `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// CompletionOf 从任务快照生成完成消息
func CompletionOf(run runmanager.Run) Completion {
	msg := Completion{
		RunID:       run.ID,
		Status:      run.Status,
		Error:       run.Error,
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}
	if res := run.Result; res != nil {
		msg.SolveStatus = res.Status
		msg.Solutions = len(res.Solutions)
		if len(res.Solutions) > 0 {
			obj := res.Solutions[0].Objective
			msg.Objective = &obj
		}
		if st := res.Statistics; st != nil {
			msg.Engine = st.Engine
			msg.Degraded = st.Degraded
			msg.Fallback = st.Fallback
		}
	}
	return msg
}

// Publisher 完成事件发布者
type Publisher struct {
	ch      Channel
	conn    *amqp.Connection
	queue   string
	timeout time.Duration
}

// Dial 连接 RabbitMQ 并声明持久队列
func Dial(cfg config.AMQPConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 rabbitmq 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("建立通道失败: %w", err)
	}
	p, err := NewPublisher(ch, cfg.Queue, cfg.PublishTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher 在已有通道上声明队列并创建发布者
func NewPublisher(ch Channel, queue string, timeout time.Duration) (*Publisher, error) {
	if queue == "" {
		queue = "medsched.runs"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("声明队列失败: %w", err)
	}
	return &Publisher{ch: ch, queue: queue, timeout: timeout}, nil
}

// Name 旁路名
func (p *Publisher) Name() string {
	return "amqp"
}

// Notify 只发布终态事件
func (p *Publisher) Notify(ctx context.Context, ev runmanager.Event) error {
	if ev.Kind != runmanager.EventFinished {
		return nil
	}
	return p.Publish(ctx, CompletionOf(ev.Run))
}

// Publish 发布一条完成消息
func (p *Publisher) Publish(ctx context.Context, msg Completion) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化完成消息失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.RunID,
			Timestamp:    time.Now(),
			Type:         "run." + string(msg.Status),
			Body:         body,
		},
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodePublishError, "发布完成消息失败")
	}
	return nil
}

// Close 关闭通道与连接
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
