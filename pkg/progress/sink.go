package progress

import (
	"sync"
	"sync/atomic"
)

// AsyncSink forwards updates to another sink from a background goroutine.
// Notify never blocks: when the buffer is full the update is dropped.
type AsyncSink struct {
	next    Sink
	ch      chan Update
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

// NewAsyncSink starts forwarding to next through a buffer of the given size.
func NewAsyncSink(next Sink, buffer int) *AsyncSink {
	if buffer < 1 {
		buffer = 1
	}

	s := &AsyncSink{
		next: next,
		ch:   make(chan Update, buffer),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for u := range s.ch {
			s.next.Notify(u)
		}
	}()

	return s
}

// Notify queues u for delivery.
func (s *AsyncSink) Notify(u Update) {
	select {
	case s.ch <- u:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many updates were discarded.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting updates and waits for queued ones to be delivered.
func (s *AsyncSink) Close() {
	s.once.Do(func() {
		close(s.ch)
		s.wg.Wait()
	})
}

// Multi fans updates out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}

	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}

	return SinkFunc(func(u Update) {
		for _, s := range live {
			s.Notify(u)
		}
	})
}
