package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryItem struct {
	msg []byte
	err error
}

// In memory pub/sub, for tests. All subscriptions share one queue.
type Memory struct {
	mutex         sync.Mutex
	queue         chan memoryItem
	subscribeErrs []error

	Subscriptions int
	Closed        int
}

func NewMemory() *Memory {
	return &Memory{
		queue: make(chan memoryItem, 1024),
	}
}

// Queues a message for the next Poll.
func (m *Memory) Publish(msg []byte) {
	m.queue <- memoryItem{msg: msg}
}

// Queues an error to be returned by Poll.
func (m *Memory) Fail(err error) {
	m.queue <- memoryItem{err: err}
}

// Makes the next call to Subscribe fail with err.
func (m *Memory) FailSubscribe(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.subscribeErrs = append(m.subscribeErrs, err)
}

// Number of queued items not yet polled.
func (m *Memory) Pending() int {
	return len(m.queue)
}

func (m *Memory) Stats() (subscriptions int, closed int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.Subscriptions, m.Closed
}

func (m *Memory) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if len(m.subscribeErrs) > 0 {
		err := m.subscribeErrs[0]
		m.subscribeErrs = m.subscribeErrs[1:]
		return nil, err
	}

	m.Subscriptions++
	return &memorySubscription{m: m}, nil
}

type memorySubscription struct {
	m      *Memory
	closed bool
}

func (s *memorySubscription) Poll(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if s.closed {
		return nil, errors.New("subscription closed")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-s.m.queue:
		return item.msg, item.err
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memorySubscription) Close() error {
	s.m.mutex.Lock()
	defer s.m.mutex.Unlock()

	if !s.closed {
		s.closed = true
		s.m.Closed++
	}
	return nil
}
