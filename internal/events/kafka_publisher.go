package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultQueueSize  = 256
	kafkaWriteTimeout = 5 * time.Second
)

// ErrPublishQueueFull is returned when the background writer has fallen too far behind.
var ErrPublishQueueFull = errors.New("kafka publish queue full")

// KafkaPublisher forwards dispatched events to Kafka, one topic per event type. Handle only
// enqueues; a single background goroutine writes, so request latency never waits on the broker.
type KafkaPublisher struct {
	writer messageWriter
	prefix string
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewKafkaPublisher builds a publisher for a comma separated broker list. It returns nil when
// no brokers are configured.
func NewKafkaPublisher(brokers, topicPrefix string, logger *zap.Logger) *KafkaPublisher {
	addrs := SplitBrokers(brokers)
	if len(addrs) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		WriteTimeout:           kafkaWriteTimeout,
		RequiredAcks:           kafka.RequireOne,
	}
	return newKafkaPublisher(writer, topicPrefix, logger, defaultQueueSize)
}

func newKafkaPublisher(writer messageWriter, topicPrefix string, logger *zap.Logger, queueSize int) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &KafkaPublisher{
		writer: writer,
		prefix: strings.TrimSpace(topicPrefix),
		logger: logger,
		queue:  make(chan kafka.Message, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
		err := p.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			p.logger.Error("kafka publish failed", zap.String("topic", msg.Topic), zap.Error(err))
		}
	}
}

// Register subscribes the publisher to every event type.
func (p *KafkaPublisher) Register(d Dispatcher) {
	if p == nil || d == nil {
		return
	}
	SubscribeAll(d, p.Handle, AllEventTypes()...)
}

// Topic returns the destination topic for an event type.
func (p *KafkaPublisher) Topic(t EventType) string {
	if p.prefix == "" {
		return string(t)
	}
	return p.prefix + "." + string(t)
}

// Handle enqueues one event. Appointment events are keyed by appointment id so a record's events stay ordered.
func (p *KafkaPublisher) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := event.UserID
	if event.AppointmentID != 0 {
		key = strconv.FormatInt(event.AppointmentID, 10)
	}
	msg := kafka.Message{
		Topic: p.Topic(event.Type),
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("kafka publisher closed")
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		p.logger.Warn("kafka publish queue full; dropping event",
			zap.String("event_type", string(event.Type)), zap.String("event_id", event.ID))
		return ErrPublishQueueFull
	}
}

// Close stops accepting events, drains the queue and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InjectTraceHeaders appends W3C trace context headers to Kafka headers.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
