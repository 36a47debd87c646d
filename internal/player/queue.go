package player

import "sync"

// sampleQueue is the shared buffer between the produce goroutine and the
// device callback. The producer only appends; the consumer only advances the
// cursor and trims the consumed prefix. All access goes through the mutex,
// so neither side ever observes a torn update.
type sampleQueue struct {
	mu      sync.Mutex
	samples []float32
	cursor  int
}

func (q *sampleQueue) append(s []float32) {
	if len(s) == 0 {
		return
	}
	q.mu.Lock()
	q.samples = append(q.samples, s...)
	q.mu.Unlock()
}

// fill copies up to len(out) samples starting at the cursor, advances the
// cursor, and returns the number copied. It never blocks; a shortfall is the
// caller's to silence-fill.
func (q *sampleQueue) fill(out []float32) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := copy(out, q.samples[q.cursor:])
	q.cursor += n
	return n
}

// buffered is the number of queued samples not yet consumed.
func (q *sampleQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.samples) - q.cursor
}

func (q *sampleQueue) length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.samples)
}

func (q *sampleQueue) position() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// drained reports whether the cursor has consumed the whole queue.
func (q *sampleQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor >= len(q.samples)
}

// trim drops fully-consumed samples once the cursor has moved past high,
// keeping the trailing keep consumed samples, and returns how many were
// dropped. Unconsumed audio is never discarded.
func (q *sampleQueue) trim(high, keep int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cursor <= high {
		return 0
	}
	drop := q.cursor - keep
	if drop <= 0 {
		return 0
	}
	q.samples = append(q.samples[:0], q.samples[drop:]...)
	q.cursor -= drop
	return drop
}

func (q *sampleQueue) clear() {
	q.mu.Lock()
	q.samples = nil
	q.cursor = 0
	q.mu.Unlock()
}
