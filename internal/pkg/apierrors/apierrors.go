// Package apierrors keeps the per-channel collaborator failure banners shown
// by the presentation layer. A channel holds at most one message; a later
// success clears it.
package apierrors

import (
	"sync"

	"btc_portfolio/internal/domain"
)

// Log is a concurrency-safe registry of classified API errors.
type Log struct {
	mu     sync.RWMutex
	errors map[domain.ErrorChannel]string
}

// NewLog creates an empty registry.
func NewLog() *Log {
	return &Log{errors: make(map[domain.ErrorChannel]string)}
}

// Set records the current failure message for a channel, replacing any
// previous one.
func (l *Log) Set(channel domain.ErrorChannel, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors[channel] = message
}

// Clear removes the failure recorded for a channel, if any.
func (l *Log) Clear(channel domain.ErrorChannel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.errors, channel)
}

// ClearAll removes every recorded failure.
func (l *Log) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = make(map[domain.ErrorChannel]string)
}

// Active returns the currently recorded failures in a stable channel order.
func (l *Log) Active() []domain.APIError {
	l.mu.RLock()
	defer l.mu.RUnlock()

	order := []domain.ErrorChannel{
		domain.ErrorChannelPrice,
		domain.ErrorChannelBalance,
		domain.ErrorChannelNetwork,
		domain.ErrorChannelStorage,
	}
	out := make([]domain.APIError, 0, len(l.errors))
	for _, ch := range order {
		if msg, ok := l.errors[ch]; ok {
			out = append(out, domain.APIError{Channel: ch, Message: msg})
		}
	}
	return out
}
