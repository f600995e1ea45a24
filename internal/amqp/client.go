// Package amqp carries the async surface of the ledger: sync requests
// flowing from the API to the worker and budget alerts flowing back out.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn          *amqp091.Connection
	channel       *amqp091.Channel
	exchangeName  string
	syncQueueName string
	alertQueue    string
}

func NewClient(url, exchangeName, syncQueue, alertQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:          conn,
		channel:       channel,
		exchangeName:  exchangeName,
		syncQueueName: syncQueue,
		alertQueue:    alertQueue,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Routing key equals queue name on a direct exchange.
	for _, queue := range []string{c.syncQueueName, c.alertQueue} {
		_, err = c.channel.QueueDeclare(
			queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// PublishSyncRequest enqueues a statement sync for one account.
func (c *Client) PublishSyncRequest(ctx context.Context, accountID int64, from, to time.Time) error {
	msg := NewSyncRequest(accountID, from, to)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal sync request: %w", err)
	}

	if err := c.publish(ctx, c.syncQueueName, body); err != nil {
		return fmt.Errorf("publish sync request: %w", err)
	}

	slog.InfoContext(ctx, "Published sync request",
		"account_id", accountID,
		"from", from,
		"to", to,
		"queue", c.syncQueueName)
	return nil
}

// PublishBudgetAlert fans out a threshold crossing discovered after a
// batch commit.
func (c *Client) PublishBudgetAlert(ctx context.Context, alert *BudgetAlert) error {
	body, err := alert.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal budget alert: %w", err)
	}

	if err := c.publish(ctx, c.alertQueue, body); err != nil {
		return fmt.Errorf("publish budget alert: %w", err)
	}

	slog.InfoContext(ctx, "Published budget alert",
		"budget_id", alert.BudgetID,
		"usage_percent", alert.UsagePercent,
		"queue", c.alertQueue)
	return nil
}

// ConsumeSyncRequests delivers sync requests to the handler until the
// context is cancelled. Handler errors requeue the message; undecodable
// payloads are dropped.
func (c *Client) ConsumeSyncRequests(ctx context.Context, handler func(*SyncRequest) error) error {
	msgs, err := c.channel.Consume(
		c.syncQueueName,
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming sync requests", "queue", c.syncQueueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := SyncRequestFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal sync request", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			slog.InfoContext(ctx, "Processing sync request", "account_id", msg.AccountID)

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle sync request",
					"error", err,
					"account_id", msg.AccountID)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
			slog.InfoContext(ctx, "Processed sync request", "account_id", msg.AccountID)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
