package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageWriter is the slice of kafka.Writer the mirror uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirrorConfig holds Kafka mirror settings.
type KafkaMirrorConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaMirror forwards every bus event to a Kafka topic so external
// consumers can replay debate activity. Delivery is best effort: a
// broker outage never blocks the debates producing the events.
type KafkaMirror struct {
	writer messageWriter
	bus    *Bus
	logger *logrus.Logger

	writeTimeout time.Duration
	ch           <-chan *Event
	wg           sync.WaitGroup
	mu           sync.Mutex
	started      bool

	published int64
	failed    int64
}

// NewKafkaMirror creates a mirror publishing to the given brokers.
func NewKafkaMirror(cfg KafkaMirrorConfig, bus *Bus, logger *logrus.Logger) *KafkaMirror {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}

	return &KafkaMirror{
		writer:       writer,
		bus:          bus,
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
	}
}

// Start begins mirroring bus events. Safe to call once.
func (m *KafkaMirror) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ch = m.bus.SubscribeAll()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()

	m.logger.Info("Kafka event mirror started")
}

func (m *KafkaMirror) run() {
	defer m.wg.Done()
	for event := range m.ch {
		m.publish(event)
	}
}

func (m *KafkaMirror) publish(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		atomic.AddInt64(&m.failed, 1)
		m.logger.WithError(err).Warn("Failed to encode event for Kafka")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.writeTimeout)
	defer cancel()

	err = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: data,
		Time:  event.Timestamp,
	})
	if err != nil {
		atomic.AddInt64(&m.failed, 1)
		m.logger.WithError(err).WithField("type", event.Type).Warn("Failed to mirror event to Kafka")
		return
	}

	atomic.AddInt64(&m.published, 1)
}

// Stop unsubscribes from the bus, drains in-flight events, and closes
// the writer.
func (m *KafkaMirror) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	ch := m.ch
	m.mu.Unlock()

	m.bus.Unsubscribe(ch)
	m.wg.Wait()

	if err := m.writer.Close(); err != nil {
		m.logger.WithError(err).Warn("Failed to close Kafka writer")
	}

	m.logger.WithFields(logrus.Fields{
		"published": atomic.LoadInt64(&m.published),
		"failed":    atomic.LoadInt64(&m.failed),
	}).Info("Kafka event mirror stopped")
}

// Published reports successfully mirrored events.
func (m *KafkaMirror) Published() int64 {
	return atomic.LoadInt64(&m.published)
}

// Failed reports events that could not be mirrored.
func (m *KafkaMirror) Failed() int64 {
	return atomic.LoadInt64(&m.failed)
}
