package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
)

type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

// TaskQueueClient submits HTTP-task descriptors as persistent messages. The
// descriptor's HTTP fields (target url, method, audience) ride along as
// message headers so the consuming side can reconstruct the intended call.
type TaskQueueClient struct {
	pub *Publisher
}

func NewTaskQueueClient(pub *Publisher) *TaskQueueClient {
	return &TaskQueueClient{pub: pub}
}

func (c *TaskQueueClient) Submit(ctx context.Context, task port.QueueTask) (*port.TaskHandle, error) {
	headers := amqp.Table{
		"x-target-url":  task.TargetURL,
		"x-http-method": task.Method,
		"x-audience":    task.Audience,
	}
	for k, v := range task.Headers {
		headers[k] = v
	}
	if task.DelaySeconds > 0 {
		headers["x-delay-seconds"] = task.DelaySeconds
	}

	err := c.pub.channel.PublishWithContext(ctx,
		c.pub.exchange,
		task.Queue,
		false, false,
		amqp.Publishing{
			MessageId:    task.Name,
			ContentType:  "application/json",
			Body:         task.Body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("publish task %s to %s: %w", task.Name, task.Queue, err)
	}

	return &port.TaskHandle{
		Name:       task.Name,
		Queue:      task.Queue,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

type StatusPublisher struct {
	pub        *Publisher
	routingKey string
}

func NewStatusPublisher(pub *Publisher, routingKey string) *StatusPublisher {
	return &StatusPublisher{pub: pub, routingKey: routingKey}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.channel.PublishWithContext(ctx,
		sp.pub.exchange,
		sp.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.channel.PublishWithContext(ctx,
		"",
		dp.queue,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				"x-dlq-reason": reason,
			},
		},
	)
}
