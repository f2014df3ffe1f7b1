// Package notifier is an in-process pub/sub channel. While listening, one
// goroutine drains published messages and hands each to every subscriber.
package notifier

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"probeserver/internal/metrics"
)

var (
	// ErrNotListening is returned by Publish while the notifier is stopped.
	ErrNotListening = errors.New("notifier not listening")
	// ErrBufferFull is returned by Publish when the backlog is at capacity.
	ErrBufferFull = errors.New("notifier buffer full")
)

const defaultBuffer = 64

// Message is one notification.
type Message struct {
	Channel string
	Payload string
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithMetrics counts published and delivered messages.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithBuffer sets how many messages may wait for delivery.
func WithBuffer(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.buffer = size
		}
	}
}

// Notifier fans out messages to subscribers.
type Notifier struct {
	listening atomic.Bool

	mu          sync.RWMutex // guards subscribers and messages
	subscribers []func(Message)
	messages    chan Message

	life sync.Mutex
	quit chan struct{}
	done chan struct{}

	buffer  int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New returns a Notifier that is not yet listening.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		buffer: defaultBuffer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe registers fn for every message delivered from now on.
func (n *Notifier) Subscribe(fn func(Message)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, fn)
}

// Listen starts the delivery goroutine. It is a no-op when already listening.
func (n *Notifier) Listen() {
	n.life.Lock()
	defer n.life.Unlock()
	if n.listening.Load() {
		return
	}

	n.mu.Lock()
	n.messages = make(chan Message, n.buffer)
	messages := n.messages
	n.mu.Unlock()

	n.quit = make(chan struct{})
	n.done = make(chan struct{})
	n.listening.Store(true)
	n.logger.Info("notifier listening")

	go n.deliver(messages, n.quit, n.done)
}

// Stop stops delivery and waits for the delivery goroutine. Messages still
// buffered are dropped.
func (n *Notifier) Stop() {
	n.life.Lock()
	defer n.life.Unlock()
	if !n.listening.CompareAndSwap(true, false) {
		return
	}

	n.mu.Lock()
	dropped := len(n.messages)
	n.messages = nil
	n.mu.Unlock()

	close(n.quit)
	<-n.done
	n.logger.Info("notifier stopped", zap.Int("dropped", dropped))
}

// Listening reports whether messages are being delivered.
func (n *Notifier) Listening() bool {
	return n.listening.Load()
}

// Publish queues msg for delivery without blocking.
func (n *Notifier) Publish(msg Message) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.messages == nil {
		return ErrNotListening
	}
	select {
	case n.messages <- msg:
	default:
		return ErrBufferFull
	}
	if n.metrics != nil {
		n.metrics.NotificationsSent.Inc()
	}
	return nil
}

func (n *Notifier) deliver(messages <-chan Message, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case msg := <-messages:
			n.mu.RLock()
			subscribers := append(([]func(Message))(nil), n.subscribers...)
			n.mu.RUnlock()
			for _, fn := range subscribers {
				n.notify(fn, msg)
			}
			if n.metrics != nil {
				n.metrics.NotificationsReceived.Inc()
			}
		}
	}
}

func (n *Notifier) notify(fn func(Message), msg Message) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("notifier subscriber panicked",
				zap.String("channel", msg.Channel),
				zap.Any("panic", r),
			)
		}
	}()
	fn(msg)
}
