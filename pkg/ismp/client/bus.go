package client

import (
	"context"
	"sync"

	"cosmossdk.io/log"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/event"
)

// busBuffer is the capacity of the channel receiving upstream notifications of a topic, and of the queue
// of every subscriber.
const busBuffer = 16

type topicKey struct {
	chain        types.StateMachineID
	counterparty types.StateMachineID
}

// topic multiplexes one upstream subscription of a chain to all of its subscribers.
type topic struct {
	// subscribers is guarded by Bus.mu.
	subscribers map[*busSubscriber]struct{}
	upstream    event.Subscription
	cancel      context.CancelFunc

	// failed is closed once err is set by the forwarding goroutine.
	failed chan struct{}
	err    error

	done     chan struct{}
	teardown sync.Once
}

func (t *topic) close() {
	t.teardown.Do(func() {
		close(t.done)
		t.upstream.Unsubscribe()
		t.cancel()
	})
}

// busSubscriber queues updates for one subscriber so that a slow reader only holds back itself.
type busSubscriber struct {
	queue chan StateMachineUpdated
}

// push enqueues update, dropping the oldest queued update when the queue is full. Later updates carry
// higher heights, so the newest one is kept. push is only called by the forwarding goroutine.
func (s *busSubscriber) push(update StateMachineUpdated) bool {
	select {
	case s.queue <- update:
		return true
	default:
	}

	select {
	case <-s.queue:
	default:
	}
	s.queue <- update
	return false
}

// Bus shares state machine update notifications between trackers. Each (chain, counterparty) pair
// holds a single upstream subscription, opened for the first subscriber and closed when the last one
// leaves.
type Bus struct {
	logger  log.Logger
	metrics *Metrics

	mu     sync.Mutex
	topics map[topicKey]*topic
}

// NewBus returns an empty Bus.
func NewBus(logger log.Logger, metrics *Metrics) *Bus {
	return &Bus{
		logger:  logger.With("module", "ismp_bus"),
		metrics: metrics,
		topics:  make(map[topicKey]*topic),
	}
}

// Subscribe delivers updates of counterparty observed by chain to ch. An upstream failure is delivered
// to the Err channel of every subscriber of the topic.
func (b *Bus) Subscribe(chain Chain, counterparty types.StateMachineID, ch chan<- StateMachineUpdated) (event.Subscription, error) {
	key := topicKey{chain: chain.StateMachineID(), counterparty: counterparty}
	s := &busSubscriber{queue: make(chan StateMachineUpdated, busBuffer)}

	t, err := b.join(chain, key, s)
	if err != nil {
		return nil, err
	}
	b.metrics.BusSubscribers.WithLabelValues(key.chain.String(), key.counterparty.String()).Inc()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer b.release(key, t, s)

		for {
			select {
			case update := <-s.queue:
				select {
				case ch <- update:
				case <-quit:
					return nil
				}
			case <-quit:
				return nil
			case <-t.failed:
				return t.err
			}
		}
	}), nil
}

// join adds s to the topic of key, opening the topic if it does not exist. The upstream subscription is
// opened without holding b.mu.
func (b *Bus) join(chain Chain, key topicKey, s *busSubscriber) (*topic, error) {
	b.mu.Lock()
	if t, ok := b.topics[key]; ok {
		t.subscribers[s] = struct{}{}
		b.mu.Unlock()
		return t, nil
	}
	b.mu.Unlock()

	opened, updates, err := b.open(chain, key)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if t, ok := b.topics[key]; ok {
		// Another subscriber opened the topic in the meantime.
		t.subscribers[s] = struct{}{}
		b.mu.Unlock()
		opened.close()
		return t, nil
	}
	opened.subscribers[s] = struct{}{}
	b.topics[key] = opened
	b.mu.Unlock()

	b.logger.Debug("opened state machine update topic", "chain", key.chain, "counterparty", key.counterparty)
	go b.forward(key, opened, updates)
	return opened, nil
}

func (b *Bus) open(chain Chain, key topicKey) (*topic, <-chan StateMachineUpdated, error) {
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan StateMachineUpdated, busBuffer)

	upstream, err := chain.SubscribeStateMachineUpdates(ctx, key.counterparty, updates)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	return &topic{
		subscribers: make(map[*busSubscriber]struct{}),
		upstream:    upstream,
		cancel:      cancel,
		failed:      make(chan struct{}),
		done:        make(chan struct{}),
	}, updates, nil
}

func (b *Bus) forward(key topicKey, t *topic, updates <-chan StateMachineUpdated) {
	for {
		select {
		case update := <-updates:
			b.mu.Lock()
			for s := range t.subscribers {
				if !s.push(update) {
					b.logger.Debug("dropped state machine update for slow subscriber", "chain", key.chain, "counterparty", key.counterparty, "height", update.LatestHeight)
				}
			}
			b.mu.Unlock()
		case err := <-t.upstream.Err():
			if err == nil {
				// Unsubscribed through close.
				return
			}
			b.logger.Error("state machine update subscription failed", "chain", key.chain, "counterparty", key.counterparty, "error", err)

			b.mu.Lock()
			if b.topics[key] == t {
				delete(b.topics, key)
			}
			b.mu.Unlock()

			t.err = err
			close(t.failed)
			return
		case <-t.done:
			return
		}
	}
}

func (b *Bus) release(key topicKey, t *topic, s *busSubscriber) {
	b.metrics.BusSubscribers.WithLabelValues(key.chain.String(), key.counterparty.String()).Dec()

	b.mu.Lock()
	delete(t.subscribers, s)
	last := len(t.subscribers) == 0
	if last && b.topics[key] == t {
		delete(b.topics, key)
	}
	b.mu.Unlock()

	if last {
		b.logger.Debug("closed state machine update topic", "chain", key.chain, "counterparty", key.counterparty)
		t.close()
	}
}

// Topics returns the number of open upstream subscriptions.
func (b *Bus) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
