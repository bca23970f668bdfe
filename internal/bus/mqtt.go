package bus

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/banshee-data/pursuit/internal/monitoring"
	"github.com/banshee-data/pursuit/internal/timeutil"
)

// qos0 is fire-and-forget delivery.
const qos0 byte = 0

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker         string        // e.g. tcp://localhost:1883
	ClientID       string        // generated when empty
	ConnectTimeout time.Duration // also bounds each publish
	Buffer         int           // per-subscription channel buffer
}

// MQTTBus is a Bus backed by an MQTT broker at QoS 0.
type MQTTBus struct {
	client  mqtt.Client
	hub     *hub
	clock   timeutil.Clock
	timeout time.Duration

	mu     sync.Mutex
	routed map[string]bool // topics subscribed at the broker
	all    bool            // subscribed to "#"
}

// NewClientID returns a unique client ID for this process.
func NewClientID() string {
	return "pursuit-" + uuid.NewString()
}

// DialMQTT connects to the broker and returns a ready bus.
func DialMQTT(cfg MQTTConfig) (*MQTTBus, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = NewClientID()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	b := &MQTTBus{
		hub:     newHub(cfg.Buffer),
		clock:   timeutil.RealClock{},
		timeout: cfg.ConnectTimeout,
		routed:  make(map[string]bool),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(func(mqtt.Client) {
			monitoring.Logf("[bus] connected to %s as %s", cfg.Broker, cfg.ClientID)
			b.resubscribe()
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("[bus] connection to %s lost: %v", cfg.Broker, err)
		})
	b.client = mqtt.NewClient(opts)

	tok := b.client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return b, nil
}

// NewMQTTBus wraps an already-configured client. The caller owns connecting
// it; subscriptions are made at the broker as they are requested.
func NewMQTTBus(client mqtt.Client, buffer int, timeout time.Duration, clock timeutil.Clock) *MQTTBus {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &MQTTBus{
		client:  client,
		hub:     newHub(buffer),
		clock:   clock,
		timeout: timeout,
		routed:  make(map[string]bool),
	}
}

func (b *MQTTBus) handle(_ mqtt.Client, m mqtt.Message) {
	b.hub.deliver(Message{
		Topic:      m.Topic(),
		Payload:    append([]byte(nil), m.Payload()...),
		ReceivedAt: b.clock.Now(),
	})
}

func (b *MQTTBus) Publish(topic string, payload []byte) error {
	if b.hub.isClosing() {
		return ErrClosed
	}
	tok := b.client.Publish(topic, qos0, false, payload)
	if !tok.WaitTimeout(b.timeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, b.timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.hub.published.Add(1)
	return nil
}

func (b *MQTTBus) Subscribe(topics ...string) (string, <-chan Message) {
	id, ch := b.hub.subscribe(topics...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(topics) == 0 {
		if !b.all {
			b.all = b.route("#")
		}
		return id, ch
	}
	for _, t := range topics {
		if !b.routed[t] {
			b.routed[t] = b.route(t)
		}
	}
	return id, ch
}

// route subscribes at the broker. Callers hold b.mu.
func (b *MQTTBus) route(topic string) bool {
	tok := b.client.Subscribe(topic, qos0, b.handle)
	if !tok.WaitTimeout(b.timeout) {
		monitoring.Logf("[bus] subscribe %s: timed out", topic)
		return false
	}
	if err := tok.Error(); err != nil {
		monitoring.Logf("[bus] subscribe %s: %v", topic, err)
		return false
	}
	return true
}

// resubscribe restores broker routes after a reconnect.
func (b *MQTTBus) resubscribe() {
	topics, all := b.hub.topics()
	b.mu.Lock()
	defer b.mu.Unlock()
	if all {
		b.all = b.route("#")
	}
	for t := range topics {
		b.routed[t] = b.route(t)
	}
}

func (b *MQTTBus) Unsubscribe(id string) { b.hub.unsubscribe(id) }

func (b *MQTTBus) Stats() Stats { return b.hub.stats() }

// Close closes all subscriptions and disconnects from the broker.
func (b *MQTTBus) Close() error {
	if !b.hub.close() {
		return nil
	}
	b.client.Disconnect(250)
	return nil
}
