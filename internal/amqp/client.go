// Package amqp publishes ledger-sync and diagnostic events and consumes them
// in the worker.
package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"cofrinho/internal/core"
	"cofrinho/internal/diag"
	applog "cofrinho/internal/log"
)

const publishTimeout = 5 * time.Second

// Config names the exchange and the two queues bound to it.
type Config struct {
	Exchange         string
	SyncQueue        string
	DiagnosticsQueue string
}

// publisher is the part of *amqp091.Channel the client publishes through.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type Client struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	pub     publisher
	mu      sync.Mutex
	cfg     Config
	logger  *applog.Logger
}

var _ diag.Reporter = (*Client)(nil)

func NewClient(url string, cfg Config, logger *applog.Logger) (*Client, error) {
	if logger == nil {
		logger = applog.Discard()
	}

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
		conn:    conn,
		channel: channel,
		pub:     channel,
		cfg:     cfg,
		logger:  logger.WithComponent(applog.ComponentAMQP),
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.cfg.Exchange, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.cfg.SyncQueue, c.cfg.DiagnosticsQueue} {
		if _, err := c.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		// routing key equals the queue name on a direct exchange
		if err := c.channel.QueueBind(queue, queue, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

func (c *Client) publish(ctx context.Context, queue string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pub.PublishWithContext(
		ctx,
		c.cfg.Exchange,
		queue,
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

// PublishLedgerSync announces a committed transaction batch.
func (c *Client) PublishLedgerSync(ctx context.Context, uid string, txs []core.Transaction) error {
	msg := NewLedgerSyncMessage(uid, txs)
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.cfg.SyncQueue, body); err != nil {
		return fmt.Errorf("publish ledger sync: %w", err)
	}

	c.logger.InfoContext(ctx, "Published ledger sync message",
		applog.FieldUserID, uid,
		applog.FieldGroupID, msg.GroupID,
		applog.FieldTxCount, len(txs),
		"queue", c.cfg.SyncQueue)
	return nil
}

// Report publishes a permission diagnostic. Failures are only logged.
func (c *Client) Report(ctx context.Context, e *diag.PermissionError) {
	body, err := NewDiagnosticMessage(e).ToJSON()
	if err == nil {
		err = c.publish(ctx, c.cfg.DiagnosticsQueue, body)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to publish diagnostic",
			applog.FieldDocPath, e.Path,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err.Error())
	}
}

// outcome is what the consumer does with a delivery.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeReject
)

// dispatch decodes body and runs handle. Undecodable messages are rejected,
// handler failures requeued.
func dispatch[T any](ctx context.Context, body []byte, decode func([]byte) (*T, error), handle func(context.Context, *T) error) (outcome, error) {
	msg, err := decode(body)
	if err != nil {
		return outcomeReject, fmt.Errorf("decode message: %w", err)
	}
	if err := handle(ctx, msg); err != nil {
		return outcomeRequeue, err
	}
	return outcomeAck, nil
}

// ConsumeMessages consumes both queues until ctx ends or a channel closes.
func (c *Client) ConsumeMessages(
	ctx context.Context,
	syncHandler func(context.Context, *LedgerSyncMessage) error,
	diagHandler func(context.Context, *DiagnosticMessage) error,
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consume(ctx, c, c.cfg.SyncQueue, LedgerSyncMessageFromJSON, syncHandler)
	})
	g.Go(func() error {
		return consume(ctx, c, c.cfg.DiagnosticsQueue, DiagnosticMessageFromJSON, diagHandler)
	})
	return g.Wait()
}

func consume[T any](ctx context.Context, c *Client, queue string, decode func([]byte) (*T, error), handle func(context.Context, *T) error) error {
	msgs, err := c.channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", queue, err)
	}

	c.logger.InfoContext(ctx, "Started consuming messages", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel %s closed", queue)
			}

			result, err := dispatch(ctx, delivery.Body, decode, handle)
			switch result {
			case outcomeReject:
				c.logger.ErrorContext(ctx, "Failed to unmarshal message",
					"queue", queue, applog.FieldError, err.Error())
				delivery.Nack(false, false)
			case outcomeRequeue:
				c.logger.ErrorContext(ctx, "Failed to handle message",
					"queue", queue, applog.FieldError, err.Error())
				delivery.Nack(false, true)
			default:
				delivery.Ack(false)
				c.logger.DebugContext(ctx, "Processed message", "queue", queue)
			}
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
