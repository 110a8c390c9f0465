// ABOUTME: In-memory line plumbing between the simulated system and clients
// ABOUTME: Unbounded line queues and the client-side transport.Stream
package mock

import (
	"sync"

	"github.com/harperreed/heos-go/pkg/transport"
)

// lineQueue is an unbounded FIFO of lines. push never blocks, so the system
// can deliver while holding its lock.
type lineQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	lines  []string
	closed bool
	err    error
}

func newLineQueue() *lineQueue {
	q := &lineQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *lineQueue) push(line string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.lines = append(q.lines, line)
	q.cond.Signal()
	return true
}

// pop blocks until a line is available. Lines queued before close are
// still returned, then the close error.
func (q *lineQueue) pop() (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.lines) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.lines) > 0 {
		line := q.lines[0]
		q.lines[0] = ""
		q.lines = q.lines[1:]
		return line, nil
	}
	return "", q.err
}

// close ends the queue. With discard set, undelivered lines are dropped.
func (q *lineQueue) close(err error, discard bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.err = err
	if discard {
		q.lines = nil
	}
	q.cond.Broadcast()
}

func (q *lineQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// memStream is the client end of an in-memory connection
type memStream struct {
	sys  *System
	sess *session

	closeOnce sync.Once
}

var _ transport.Stream = (*memStream)(nil)

func (m *memStream) ReadLine() (string, error) {
	return m.sess.out.pop()
}

func (m *memStream) WriteLine(line string) error {
	if m.sess.out.isClosed() {
		return transport.ErrClosed
	}
	m.sys.handleLine(m.sess, line)
	return nil
}

func (m *memStream) Close() error {
	m.closeOnce.Do(func() {
		m.sys.removeSession(m.sess)
		m.sess.out.close(transport.ErrClosed, true)
	})
	return nil
}
