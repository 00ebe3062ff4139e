// Package mailbox implements per-agent ordered FIFO message queues
// (spec.md §4.5).
package mailbox

import (
	"sync"
	"time"
)

// Message is one queued inter-agent message.
type Message struct {
	From      string
	To        string
	Title     string
	Content   string
	Priority  string
	Timestamp time.Time
}

// Box serializes all operations under a single lock to guarantee
// linearizability across the broker, delivery engine, and supervisor.
type Box struct {
	mu     sync.Mutex
	queues map[string][]Message
}

func New() *Box {
	return &Box{queues: make(map[string][]Message)}
}

// Append adds msg to agent's queue, preserving insertion order.
func (b *Box) Append(agent string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[agent] = append(b.queues[agent], msg)
}

// Drain removes and returns all of agent's queued messages, in order.
func (b *Box) Drain(agent string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.queues[agent]
	delete(b.queues, agent)
	return msgs
}

// Count returns the number of pending messages for agent.
func (b *Box) Count(agent string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[agent])
}

// HasPending reports whether agent has any undelivered messages.
func (b *Box) HasPending(agent string) bool {
	return b.Count(agent) > 0
}

// Remove clears agent's queue entirely (used on Supervisor.Stop).
func (b *Box) Remove(agent string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, agent)
}
