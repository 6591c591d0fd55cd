package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/lsm/relay/internal/chat"
	"github.com/lsm/relay/internal/source"
)

// fakeStream yields queued items; once the queue is closed it reports
// source.ErrClosed.
type fakeStream struct {
	items  chan item
	closed chan struct{}
	once   sync.Once
}

type item struct {
	evt source.Event
	err error
}

func newFakeStream() *fakeStream {
	return &fakeStream{items: make(chan item, 16), closed: make(chan struct{})}
}

func (s *fakeStream) push(topic, payload string) {
	s.items <- item{evt: source.Event{Topic: topic, Value: []byte(payload), CorrelationID: "corr-" + payload}}
}

func (s *fakeStream) fail(err error) { s.items <- item{err: err} }

func (s *fakeStream) end() { close(s.items) }

func (s *fakeStream) Next(ctx context.Context) (source.Event, error) {
	select {
	case <-ctx.Done():
		return source.Event{}, ctx.Err()
	case it, ok := <-s.items:
		if !ok {
			return source.Event{}, source.ErrClosed
		}
		return it.evt, it.err
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeConn struct {
	broker *fakeBroker
	closed bool
}

func (c *fakeConn) Subscribe(_ context.Context, topic string) (source.Stream, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.subscribed = append(c.broker.subscribed, topic)
	if err := c.broker.subscribeErr[topic]; err != nil {
		return nil, err
	}
	st, ok := c.broker.streams[topic]
	if !ok {
		return nil, errors.New("unknown topic " + topic)
	}
	return st, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeBroker struct {
	mu           sync.Mutex
	connectErr   map[string]error
	subscribeErr map[string]error
	streams      map[string]*fakeStream
	conns        []*fakeConn
	subscribed   []string
	connects     int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		connectErr:   make(map[string]error),
		subscribeErr: make(map[string]error),
		streams:      make(map[string]*fakeStream),
	}
}

func (b *fakeBroker) stream(topic string) *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := newFakeStream()
	b.streams[topic] = st
	return st
}

func (b *fakeBroker) Connect(context.Context) (source.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	if err := b.connectErr["*"]; err != nil {
		return nil, err
	}
	c := &fakeConn{broker: b}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBroker) Close() error { return nil }

type delivery struct {
	dest chat.DestinationID
	msg  *chat.Message
}

// fakeSink records deliveries and fails the calls listed in failOn (1-based).
type fakeSink struct {
	mu        sync.Mutex
	calls     int
	failOn    map[int]bool
	delivered []delivery
	notify    chan delivery
}

func newFakeSink() *fakeSink {
	return &fakeSink{failOn: make(map[int]bool), notify: make(chan delivery, 16)}
}

func (s *fakeSink) Deliver(_ context.Context, dest chat.DestinationID, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOn[s.calls] {
		return errors.New("discord unavailable")
	}
	d := delivery{dest: dest, msg: msg}
	s.delivered = append(s.delivered, d)
	s.notify <- d
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, d := range s.delivered {
		out = append(out, d.msg.Body)
	}
	return out
}
