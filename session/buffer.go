package session

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Get once the queue has been closed.
var ErrQueueClosed = errors.New("audio queue closed")

// AudioQueue is an unbounded FIFO of audio chunks with a single blocking
// consumer. Put never blocks, so the receive loop is never throttled by
// playback.
type AudioQueue struct {
	chunks    [][]byte
	totalSize int
	closed    bool
	notify    chan struct{}
	mu        sync.Mutex
}

// NewAudioQueue creates an empty queue
func NewAudioQueue() *AudioQueue {
	return &AudioQueue{
		chunks: make([][]byte, 0),
		notify: make(chan struct{}, 1),
	}
}

// Put appends a chunk. It reports false if the queue is closed.
func (q *AudioQueue) Put(chunk []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.chunks = append(q.chunks, chunk)
	q.totalSize += len(chunk)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Get removes the oldest chunk, blocking while the queue is empty.
func (q *AudioQueue) Get(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.chunks) > 0 {
			chunk := q.chunks[0]
			q.chunks[0] = nil
			q.chunks = q.chunks[1:]
			q.totalSize -= len(chunk)
			q.mu.Unlock()
			return chunk, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Clear discards every queued chunk and returns how many were dropped.
func (q *AudioQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.chunks)
	q.chunks = make([][]byte, 0)
	q.totalSize = 0
	return n
}

// Close discards queued audio and wakes the consumer.
func (q *AudioQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.chunks = nil
	q.totalSize = 0
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued chunks
func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// Size returns the number of queued bytes
func (q *AudioQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalSize
}
