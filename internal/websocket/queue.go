package websocket

import (
	"sync"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/internal/metrics"
)

const connQueueSize = 256

// connQueue runs the events of one handle in arrival order on a single
// goroutine.
type connQueue struct {
	connID  string
	events  chan func()
	done    chan struct{}
	metrics *metrics.Metrics

	startOnce sync.Once
	stopOnce  sync.Once
}

func newConnQueue(connID string, m *metrics.Metrics) *connQueue {
	return &connQueue{
		connID:  connID,
		events:  make(chan func(), connQueueSize),
		done:    make(chan struct{}),
		metrics: m,
	}
}

// enqueue schedules fn. It reports false when the queue is stopped or full.
func (q *connQueue) enqueue(fn func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	q.startOnce.Do(func() { go q.loop() })
	select {
	case q.events <- fn:
		return true
	default:
		// Avoid blocking Socket.IO callbacks indefinitely; drop under overload.
		logger.Warnf("[queue] handle %s queue full; dropping event", q.connID)
		q.metrics.Dropped("queue_full")
		return false
	}
}

// stop ends the loop once the events queued so far have run.
func (q *connQueue) stop() {
	q.stopOnce.Do(func() { close(q.done) })
}

func (q *connQueue) loop() {
	for {
		select {
		case fn := <-q.events:
			fn()
		case <-q.done:
			// Drain what was accepted before stop.
			for {
				select {
				case fn := <-q.events:
					fn()
				default:
					return
				}
			}
		}
	}
}
