// Package queue buffers outbound requests until the channel is ready.
package queue

import (
	"sync"

	"github.com/rs/zerolog"

	apperrors "github.com/chatlink/client/internal/errors"
)

// Transmitter writes one request to a ready channel.
type Transmitter interface {
	Send(v any) error
}

// Queue holds pending requests in call order. While open, Send transmits
// immediately; while closed, it buffers.
//
// The mutex is held across transmission so a Send that races a Flush lands
// after every task the flush detached.
type Queue struct {
	tx     Transmitter
	logger zerolog.Logger

	mu      sync.Mutex
	pending []any
	open    bool
}

// New creates a closed queue over tx.
func New(tx Transmitter, logger zerolog.Logger) *Queue {
	return &Queue{
		tx:     tx,
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// Send transmits v if the queue is open, otherwise appends it.
// A transmission refused because the channel is not ready re-buffers the
// task and closes the queue.
func (q *Queue) Send(v any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.open {
		q.pending = append(q.pending, v)
		return nil
	}

	err := q.tx.Send(v)
	if apperrors.IsCode(err, apperrors.CodeChannelNotReady) {
		q.open = false
		q.pending = append(q.pending, v)
		q.logger.Debug().Msg("channel not ready, buffering")
		return nil
	}
	return err
}

// Flush transmits every pending task in order and opens the queue.
// Calling Flush on an open queue transmits nothing.
//
// If a transmission fails the failed task and everything after it stay
// buffered, the queue stays closed and the error is returned.
func (q *Queue) Flush() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.open {
		return 0, nil
	}

	batch := q.pending
	q.pending = nil

	for i, v := range batch {
		if err := q.tx.Send(v); err != nil {
			q.pending = batch[i:]
			q.logger.Warn().Err(err).Int("sent", i).Int("remaining", len(q.pending)).Msg("flush interrupted")
			return i, err
		}
	}

	q.open = true
	if len(batch) > 0 {
		q.logger.Debug().Int("sent", len(batch)).Msg("flushed pending requests")
	}
	return len(batch), nil
}

// Close returns the queue to buffering.
func (q *Queue) Close() {
	q.mu.Lock()
	q.open = false
	q.mu.Unlock()
}

// IsOpen reports whether Send transmits immediately.
func (q *Queue) IsOpen() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open
}

// Len returns the number of buffered tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
