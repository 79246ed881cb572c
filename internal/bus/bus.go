package bus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Topic names as used by the autopilot bridge.
const (
	TopicAttitude  = "attitude"
	TopicTelemetry = "vfr_hud"
	TopicPose      = "simplePose"
	TopicRC        = "rc"
	TopicCommand   = "send_rc"
)

// DefaultQueueSize is the per-subscription queue depth.
const DefaultQueueSize = 1000

var (
	// ErrClosed is returned by Publish and Subscribe after Close.
	ErrClosed = errors.New("BUS_CLOSED")
	// ErrUnknownTopic is returned for topics the bus does not carry.
	ErrUnknownTopic = errors.New("UNKNOWN_TOPIC")
)

// Message is one published payload.
type Message struct {
	Topic   string
	Seq     uint64 // per-topic, starting at 1
	Payload any
	At      time.Time
}

// Handler consumes messages of one subscription.
type Handler func(Message)

// Options configure a Bus.
type Options struct {
	QueueSize int
	// ToggleChannel is the RC channel every rc frame must carry.
	ToggleChannel int
	// OnDrop is called once per message discarded from a full queue.
	OnDrop func(topic string)
}

// Bus fans published messages out to per-topic subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	seqs   map[string]*atomic.Uint64
	opts   Options
	closed bool
	wg     sync.WaitGroup
}

// Subscription is one subscriber's queue and worker.
type Subscription struct {
	topic   string
	handler Handler
	bus     *Bus

	mu      sync.Mutex
	queue   []Message
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	handled atomic.Uint64
}

// TopicStats summarizes one topic.
type TopicStats struct {
	Topic       string `json:"topic"`
	Published   uint64 `json:"published"`
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
}

// New creates a bus carrying the inbound sensor topics and the command topic.
func New(opts Options) *Bus {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	b := &Bus{
		subs: make(map[string][]*Subscription),
		seqs: make(map[string]*atomic.Uint64),
		opts: opts,
	}
	for _, topic := range Topics() {
		b.seqs[topic] = new(atomic.Uint64)
	}
	return b
}

// Topics lists every topic the bus carries.
func Topics() []string {
	return []string{TopicAttitude, TopicTelemetry, TopicPose, TopicRC, TopicCommand}
}

// InboundTopics lists the topics the arbiter consumes.
func InboundTopics() []string {
	return []string{TopicAttitude, TopicTelemetry, TopicPose, TopicRC}
}

// IsInbound reports whether topic is consumed by the arbiter.
func IsInbound(topic string) bool {
	for _, t := range InboundTopics() {
		if t == topic {
			return true
		}
	}
	return false
}

// Subscribe registers handler for topic and starts its worker.
func (b *Bus) Subscribe(topic string, handler Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.seqs[topic]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	sub := &Subscription{
		topic:   topic,
		handler: handler,
		bus:     b,
		queue:   make([]Message, 0, min(b.opts.QueueSize, 64)),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)

	b.wg.Add(1)
	go sub.run(&b.wg)

	return sub, nil
}

// Publish validates payload and queues it for every subscriber of topic. It never
// blocks on a slow subscriber.
func (b *Bus) Publish(topic string, payload any) error {
	if err := Validate(topic, payload, b.opts.ToggleChannel); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	seq, ok := b.seqs[topic]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	msg := Message{Topic: topic, Seq: seq.Add(1), Payload: payload, At: time.Now()}
	for _, sub := range b.subs[topic] {
		sub.enqueue(msg, b.opts.QueueSize)
	}
	return nil
}

// Stats returns per-topic counters ordered by topic name.
func (b *Bus) Stats() []TopicStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := make([]TopicStats, 0, len(b.seqs))
	for topic, seq := range b.seqs {
		st := TopicStats{Topic: topic, Published: seq.Load(), Subscribers: len(b.subs[topic])}
		for _, sub := range b.subs[topic] {
			st.Dropped += sub.Dropped()
		}
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Topic < stats[j].Topic })
	return stats
}

// Close stops every worker. Messages still queued are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.stop()
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Dropped returns how many messages were discarded from this subscription's queue.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Handled returns how many messages the handler has consumed.
func (s *Subscription) Handled() uint64 { return s.handled.Load() }

// Pending returns the number of queued messages.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) enqueue(msg Message, capacity int) {
	s.mu.Lock()
	dropped := false
	if len(s.queue) >= capacity {
		s.queue = s.queue[1:]
		dropped = true
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	if dropped {
		s.dropped.Add(1)
		if s.bus.opts.OnDrop != nil {
			s.bus.opts.OnDrop(s.topic)
		}
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Message{}, false
	}
	msg := s.queue[0]
	s.queue[0] = Message{}
	s.queue = s.queue[1:]
	return msg, true
}

func (s *Subscription) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			select {
			case <-s.done:
				return
			default:
			}
			msg, ok := s.next()
			if !ok {
				break
			}
			s.handler(msg)
			s.handled.Add(1)
		}
	}
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}
