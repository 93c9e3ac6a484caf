// Package connectivity provides an injectable reachability capability.
// Consumers ask Online() before attempting remote pushes and subscribe to
// transitions to trigger a flush when the connection returns.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Source reports whether the remote service is currently reachable.
type Source interface {
	// Online returns the last observed reachability.
	Online() bool

	// Subscribe returns a channel receiving the new value on every
	// transition. The channel is buffered; slow consumers miss intermediate
	// flips but always converge on the latest state.
	Subscribe() <-chan bool
}

// notifier is the shared state + fan-out behind both implementations.
type notifier struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
}

func (n *notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe() <-chan bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan bool, 1)
	n.subs = append(n.subs, ch)
	return ch
}

// set records a new value and notifies subscribers on transitions only.
func (n *notifier) set(online bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.online == online {
		return
	}
	n.online = online
	for _, ch := range n.subs {
		select {
		case ch <- online:
		default:
			// Drop rather than block; the subscriber will read the
			// latest transition still buffered.
		}
	}
}

// Manual is a connectivity source driven by explicit Set calls. Used in
// tests and for forced-offline mode.
type Manual struct {
	notifier
}

// NewManual creates a Manual source with the given initial state.
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// Set updates the reachability value.
func (m *Manual) Set(online bool) {
	m.set(online)
}

// Pinger is the probe dependency, satisfied by the remote client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober watches reachability by pinging the remote service on an interval.
type Prober struct {
	notifier
	pinger   Pinger
	interval time.Duration
}

// NewProber creates a connectivity prober. It reports offline until the
// first successful probe.
func NewProber(pinger Pinger, interval time.Duration) *Prober {
	return &Prober{
		pinger:   pinger,
		interval: interval,
	}
}

// Run starts the probe loop. It blocks until ctx is cancelled and probes
// immediately on start so consumers get an early reading.
func (p *Prober) Run(ctx context.Context) {
	slog.Info("connectivity prober started",
		"component", "connectivity",
		"interval", p.interval.String(),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("connectivity prober stopped",
				"component", "connectivity",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	err := p.pinger.Ping(ctx)
	if ctx.Err() != nil {
		return // Shutting down; keep the last reading.
	}

	online := err == nil
	was := p.Online()
	p.set(online)

	if online != was {
		slog.Info("connectivity changed",
			"component", "connectivity",
			"online", online,
		)
	}
}
