package broadcast

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ilingu/ilix-server/pkg/apperr"
	"github.com/ilingu/ilix-server/pkg/crypto"
	"github.com/ilingu/ilix-server/pkg/log"
	"github.com/ilingu/ilix-server/pkg/metrics"
)

const (
	// clientBuffer bounds each subscriber channel. A consumer that falls
	// this far behind fails its next send and is evicted by the ping loop.
	clientBuffer = 10

	// pingInterval is how often liveness of all subscribers is probed.
	pingInterval = 30 * time.Second
)

// Subscriber is the receive side of one event-stream connection.
type Subscriber struct {
	id string
	ch chan Message
}

// Ch returns the channel messages are delivered on.
func (s *Subscriber) Ch() <-chan Message {
	return s.ch
}

// ClientID binds a subscription to both the device and the authenticated
// pool, so one device in two pools holds two distinct subscriptions and never
// receives another pool's events.
func ClientID(deviceID, hashedKP string) string {
	return crypto.Hash(deviceID + ":" + hashedKP)
}

// Broadcaster is the process-local registry of event-stream subscribers with
// periodic liveness probing and targeted fan-out.
type Broadcaster struct {
	mu      sync.Mutex
	clients []*Subscriber

	stopCh chan struct{}
	logger zerolog.Logger
}

// NewBroadcaster constructs an empty broadcaster; call Start to launch the
// ping loop.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		stopCh: make(chan struct{}),
		logger: log.WithComponent("broadcast"),
	}
}

// Start launches the 30-second liveness probe loop.
func (b *Broadcaster) Start() {
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.removeStaleClients()
			case <-b.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the ping loop.
func (b *Broadcaster) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new client and synchronously delivers the Connected
// acknowledgment on its fresh channel.
func (b *Broadcaster) Subscribe(deviceID, hashedKP string) *Subscriber {
	sub := &Subscriber{
		id: ClientID(deviceID, hashedKP),
		ch: make(chan Message, clientBuffer),
	}
	sub.ch <- Connected

	b.mu.Lock()
	b.clients = append(b.clients, sub)
	n := len(b.clients)
	b.mu.Unlock()

	metrics.SSEClients.Set(float64(n))
	return sub
}

// Unsubscribe drops a client from the registry, typically when its HTTP
// connection goes away.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	kept := b.clients[:0]
	for _, c := range b.clients {
		if c != sub {
			kept = append(kept, c)
		}
	}
	b.clients = kept
	n := len(b.clients)
	b.mu.Unlock()

	metrics.SSEClients.Set(float64(n))
}

// Broadcast delivers ev to the subscribers of the given devices in the pool
// identified by hashedKP. The registry is snapshotted under lock and sends
// proceed concurrently against the snapshot; a concurrently added subscriber
// simply misses this one event.
func (b *Broadcaster) Broadcast(deviceIDs []string, hashedKP string, ev Event) error {
	targets := make(map[string]struct{}, len(deviceIDs))
	for _, did := range deviceIDs {
		targets[ClientID(did, hashedKP)] = struct{}{}
	}

	b.mu.Lock()
	snapshot := make([]*Subscriber, len(b.clients))
	copy(snapshot, b.clients)
	b.mu.Unlock()

	msg := Data(ev)
	errCh := make(chan error, len(snapshot))
	var wg sync.WaitGroup
	for _, sub := range snapshot {
		if _, ok := targets[sub.id]; !ok {
			continue
		}
		sub := sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !trySend(sub, msg) {
				errCh <- apperr.New(apperr.SseFailedToSend, nil)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	metrics.SSEEventsTotal.WithLabelValues(string(ev.Name)).Inc()
	return nil
}

// removeStaleClients pings every subscriber concurrently; the survivors
// replace the registry.
func (b *Broadcaster) removeStaleClients() {
	b.mu.Lock()
	snapshot := make([]*Subscriber, len(b.clients))
	copy(snapshot, b.clients)
	b.mu.Unlock()

	ok := make([]bool, len(snapshot))
	var wg sync.WaitGroup
	for i, sub := range snapshot {
		i, sub := i, sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok[i] = trySend(sub, Ping)
		}()
	}
	wg.Wait()

	alive := snapshot[:0]
	dropped := 0
	for i, sub := range snapshot {
		if ok[i] {
			alive = append(alive, sub)
		} else {
			dropped++
		}
	}

	b.mu.Lock()
	b.clients = alive
	n := len(b.clients)
	b.mu.Unlock()

	metrics.SSEClients.Set(float64(n))
	if dropped > 0 {
		b.logger.Debug().Int("dropped", dropped).Msg("evicted stale clients")
	}
}

// SubscriberCount returns the number of registered clients.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// trySend attempts a non-blocking delivery; a full buffer counts as failure.
func trySend(sub *Subscriber, msg Message) bool {
	select {
	case sub.ch <- msg:
		return true
	default:
		return false
	}
}
