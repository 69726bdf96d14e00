package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"messageboard/logger"
	"messageboard/metrics"
	"messageboard/models"
)

const (
	originHeader = "origin"
	reasonHeader = "reason"
)

// boardPartition is the single partition board messages live on. Every
// consumer reads the whole stream from it, in creation order.
const boardPartition = 0

// partitionBalancer pins every record to boardPartition.
type partitionBalancer struct{}

func (partitionBalancer) Balance(_ kafka.Message, partitions ...int) int {
	for _, p := range partitions {
		if p == boardPartition {
			return p
		}
	}
	// Unreachable on a real topic; partition ids start at 0.
	return partitions[0]
}

// Producer publishes board messages to a topic, keyed by message id and
// tagged with the publishing instance.
type Producer struct {
	w      *kafka.Writer
	origin string
}

func NewProducer(brokers []string, topic, origin string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     partitionBalancer{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
		origin: origin,
	}
}

func (p *Producer) Publish(ctx context.Context, msg models.Message) error {
	km, err := encode(msg, p.origin)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.ID, err)
	}
	logger.Debug("message written to kafka", logger.FieldKV("message_id", msg.ID), logger.FieldKV("topic", p.w.Topic))
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }

// DLQ receives records that could not be decoded or persisted.
type DLQ struct {
	w *kafka.Writer
}

func NewDLQ(brokers []string, topic string) *DLQ {
	return &DLQ{w: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// Write stores value under key with a reason header.
func (d *DLQ) Write(ctx context.Context, key, value []byte, reason string) error {
	if err := d.w.WriteMessages(ctx, deadLetter(key, value, reason)); err != nil {
		return fmt.Errorf("kafka dlq write: %w", err)
	}
	metrics.IncMsgDeadLettered()
	return nil
}

// WriteMessage dead-letters a decoded message.
func (d *DLQ) WriteMessage(ctx context.Context, msg models.Message, reason string) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return d.Write(ctx, []byte(msg.ID), b, reason)
}

func (d *DLQ) Close() error { return d.w.Close() }

// Consumer follows a topic from its current end and forwards each decoded
// message. Every instance reads the whole topic so that all connected
// browsers see every message. Records published under the consumer's own
// origin are delivered as local.
type Consumer struct {
	r      *kafka.Reader
	dlq    *DLQ
	origin string

	closeOnce sync.Once
	closeErr  error
}

func NewConsumer(brokers []string, topic, origin string, dlq *DLQ) *Consumer {
	return &Consumer{
		origin: origin,
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:   brokers,
			Topic:     topic,
			Partition: boardPartition,
			MinBytes:  1,
			MaxBytes:  10e6, // 10MB
			MaxWait:   250 * time.Millisecond,
		}),
		dlq: dlq,
	}
}

// Run blocks until ctx is done or the reader fails.
func (c *Consumer) Run(ctx context.Context, out chan<- models.Delivery) error {
	defer c.Close()
	if err := c.r.SetOffset(kafka.LastOffset); err != nil {
		return fmt.Errorf("kafka set offset: %w", err)
	}
	logger.Info("kafka consumer started", logger.FieldKV("topic", c.r.Config().Topic))
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka read: %w", err)
		}
		d, err := decode(m, c.origin)
		if err != nil {
			logger.Error("undecodable kafka record", err, logger.FieldKV("offset", m.Offset))
			if c.dlq != nil {
				if derr := c.dlq.Write(ctx, m.Key, m.Value, "decode_failure"); derr != nil {
					logger.Error("dlq write failed", derr)
				}
			}
			continue
		}
		select {
		case out <- d:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close releases the reader. It is safe to call more than once and without
// a prior Run.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.r.Close() })
	return c.closeErr
}

// Lag reports how far behind the reader is; used as a readiness probe.
func (c *Consumer) Lag(ctx context.Context) (int64, error) {
	return c.r.ReadLag(ctx)
}

func encode(msg models.Message, origin string) (kafka.Message, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	return kafka.Message{
		Key:     []byte(msg.ID),
		Value:   b,
		Time:    msg.CreatedAt,
		Headers: []kafka.Header{{Key: originHeader, Value: []byte(origin)}},
	}, nil
}

// decode turns a record into a delivery. A record without an origin header
// counts as remote.
func decode(m kafka.Message, self string) (models.Delivery, error) {
	var msg models.Message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return models.Delivery{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.ID == "" {
		msg.ID = string(m.Key)
	}
	if msg.ID == "" || msg.Text == "" {
		return models.Delivery{}, errors.New("record missing id or text")
	}
	origin, ok := header(m, originHeader)
	return models.Delivery{Message: msg, Remote: !ok || origin != self}, nil
}

func header(m kafka.Message, key string) (string, bool) {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}

func deadLetter(key, value []byte, reason string) kafka.Message {
	return kafka.Message{
		Key:     key,
		Value:   value,
		Headers: []kafka.Header{{Key: reasonHeader, Value: []byte(reason)}},
	}
}
