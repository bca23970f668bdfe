package bus

import "github.com/banshee-data/pursuit/internal/timeutil"

// LocalBus is an in-process bus. Every loop runs in one process and
// publishes straight into subscriber channels.
type LocalBus struct {
	hub   *hub
	clock timeutil.Clock
}

// NewLocalBus creates an in-process bus whose subscriptions buffer up to
// buffer messages each.
func NewLocalBus(buffer int, clock timeutil.Clock) *LocalBus {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &LocalBus{hub: newHub(buffer), clock: clock}
}

func (b *LocalBus) Publish(topic string, payload []byte) error {
	if b.hub.isClosing() {
		return ErrClosed
	}
	b.hub.published.Add(1)
	b.hub.deliver(Message{
		Topic:      topic,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: b.clock.Now(),
	})
	return nil
}

func (b *LocalBus) Subscribe(topics ...string) (string, <-chan Message) {
	return b.hub.subscribe(topics...)
}

func (b *LocalBus) Unsubscribe(id string) { b.hub.unsubscribe(id) }

func (b *LocalBus) Stats() Stats { return b.hub.stats() }

func (b *LocalBus) Close() error {
	b.hub.close()
	return nil
}
