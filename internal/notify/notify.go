// Package notify delivers outbound messages for the recovery flow.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/recovery"
)

var (
	_ recovery.Notifier = (*AMQPNotifier)(nil)
	_ recovery.Notifier = LogNotifier{}
)

// Message is the payload published for a mail worker.
type Message struct {
	To      string
	Subject string
	Body    string
	SentAt  time.Time
}

// Encode writes m as a JSON object.
func (m Message) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("to")
	e.Str(m.To)
	e.FieldStart("subject")
	e.Str(m.Subject)
	e.FieldStart("body")
	e.Str(m.Body)
	e.FieldStart("sent_at")
	e.Str(m.SentAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

// AMQPNotifier publishes messages to a durable RabbitMQ queue, leaving the
// actual delivery to a consumer.
type AMQPNotifier struct {
	conn  *amqp.Connection
	queue string

	mu sync.Mutex
	ch *amqp.Channel
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	n := &AMQPNotifier{conn: conn, queue: queue}
	if _, err := n.channel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return n, nil
}

// channel returns the open channel, reopening it after a channel-level
// error closed it.
func (n *AMQPNotifier) channel() (*amqp.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ch != nil && !n.ch.IsClosed() {
		return n.ch, nil
	}
	ch, err := n.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrapf(err, "declare queue %q", n.queue)
	}
	n.ch = ch
	return ch, nil
}

// Send publishes a persistent JSON message to the queue.
func (n *AMQPNotifier) Send(ctx context.Context, to, subject, body string) error {
	ch, err := n.channel()
	if err != nil {
		return err
	}

	msg := Message{To: to, Subject: subject, Body: body, SentAt: time.Now()}
	var e jx.Encoder
	msg.Encode(&e)

	err = ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.SentAt.UTC(),
		Body:         e.Bytes(),
	})
	if err != nil {
		return errors.Wrap(err, "publish")
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (n *AMQPNotifier) Ping(context.Context) error {
	if n.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		_ = n.ch.Close()
	}
	return n.conn.Close()
}

// LogNotifier writes messages to the request logger. For development.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	zctx.From(ctx).Info("Notification",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
