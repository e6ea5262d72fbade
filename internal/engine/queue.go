package engine

import (
	"sync"

	"github.com/fluxtrade/fluxtrader/internal/metrics"
	"github.com/fluxtrade/fluxtrader/internal/strategy"
)

// signalQueue is the bounded buffer between the engine and the fusion
// layer. When full, the oldest HOLD in the buffer is dropped first; if
// none exists an incoming HOLD is discarded instead. Non-HOLD signals
// are never dropped.
type signalQueue struct {
	mu       sync.Mutex
	buf      []strategy.Signal
	capacity int
	dropped  uint64
	notify   chan struct{}
}

func newSignalQueue(capacity int) *signalQueue {
	return &signalQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push enqueues a signal, applying the overflow policy. Returns false
// when the signal was discarded.
func (q *signalQueue) push(sig strategy.Signal) bool {
	q.mu.Lock()
	if len(q.buf) >= q.capacity {
		if i := q.oldestHoldLocked(); i >= 0 {
			q.buf = append(q.buf[:i], q.buf[i+1:]...)
			q.dropped++
			metrics.SignalsDropped.Inc()
		} else if sig.Action == strategy.ActionHold {
			q.dropped++
			q.mu.Unlock()
			metrics.SignalsDropped.Inc()
			return false
		}
		// A buffer of nothing but non-HOLD signals may briefly exceed
		// capacity rather than lose an actionable signal.
	}
	q.buf = append(q.buf, sig)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *signalQueue) oldestHoldLocked() int {
	for i, sig := range q.buf {
		if sig.Action == strategy.ActionHold {
			return i
		}
	}
	return -1
}

// pop removes the oldest signal, or returns false when empty.
func (q *signalQueue) pop() (strategy.Signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return strategy.Signal{}, false
	}
	sig := q.buf[0]
	q.buf = q.buf[1:]
	return sig, true
}

func (q *signalQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *signalQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
