// Package pubsub implements the channel and pattern subscription
// registry. Subscribers are opaque ids owned by the caller; the
// registry only tracks who hears what and in which registration
// order, so fan-out within a single publisher is deterministic.
//
// Shard channels form an independent namespace with the same
// mechanics and no pattern matching.
package pubsub

import (
	"sort"

	"github.com/yndnr/redsim-go/pkg/glob"
)

// Registry tracks channel, pattern and shard-channel subscriptions.
type Registry struct {
	channels map[string][]uint64
	patterns map[string][]uint64
	shard    map[string][]uint64
}

// Delivery is one message delivery target: the subscriber plus the
// pattern that matched, empty for an exact channel subscription.
type Delivery struct {
	ID      uint64
	Pattern string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		channels: make(map[string][]uint64),
		patterns: make(map[string][]uint64),
		shard:    make(map[string][]uint64),
	}
}

func subscribe(m map[string][]uint64, name string, id uint64) {
	for _, existing := range m[name] {
		if existing == id {
			return
		}
	}
	m[name] = append(m[name], id)
}

func unsubscribe(m map[string][]uint64, name string, id uint64) {
	subs := m[name]
	for i, existing := range subs {
		if existing == id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(m, name)
	} else {
		m[name] = subs
	}
}

// Subscribe registers id on an exact channel.
func (r *Registry) Subscribe(id uint64, channel string) { subscribe(r.channels, channel, id) }

// Unsubscribe removes id from an exact channel.
func (r *Registry) Unsubscribe(id uint64, channel string) { unsubscribe(r.channels, channel, id) }

// PSubscribe registers id on a pattern.
func (r *Registry) PSubscribe(id uint64, pattern string) { subscribe(r.patterns, pattern, id) }

// PUnsubscribe removes id from a pattern.
func (r *Registry) PUnsubscribe(id uint64, pattern string) { unsubscribe(r.patterns, pattern, id) }

// SSubscribe registers id on a shard channel.
func (r *Registry) SSubscribe(id uint64, channel string) { subscribe(r.shard, channel, id) }

// SUnsubscribe removes id from a shard channel.
func (r *Registry) SUnsubscribe(id uint64, channel string) { unsubscribe(r.shard, channel, id) }

// Drop removes id from everything; called when a connection closes.
func (r *Registry) Drop(id uint64) {
	for name := range r.channels {
		unsubscribe(r.channels, name, id)
	}
	for name := range r.patterns {
		unsubscribe(r.patterns, name, id)
	}
	for name := range r.shard {
		unsubscribe(r.shard, name, id)
	}
}

// Route resolves the delivery list for a publish on channel: exact
// subscribers first in registration order, then pattern subscribers
// whose pattern matches, in registration order per pattern.
func (r *Registry) Route(channel string) []Delivery {
	var out []Delivery
	for _, id := range r.channels[channel] {
		out = append(out, Delivery{ID: id})
	}
	patterns := make([]string, 0, len(r.patterns))
	for p := range r.patterns {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		if !glob.Match(p, channel) {
			continue
		}
		for _, id := range r.patterns[p] {
			out = append(out, Delivery{ID: id, Pattern: p})
		}
	}
	return out
}

// RouteShard resolves deliveries for a shard-channel publish.
func (r *Registry) RouteShard(channel string) []Delivery {
	var out []Delivery
	for _, id := range r.shard[channel] {
		out = append(out, Delivery{ID: id})
	}
	return out
}

// Channels lists active exact channels, optionally filtered by a
// glob pattern, sorted for stable replies.
func (r *Registry) Channels(pattern string) []string {
	var out []string
	for ch, subs := range r.channels {
		if len(subs) == 0 {
			continue
		}
		if pattern != "" && !glob.Match(pattern, ch) {
			continue
		}
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// ShardChannels lists active shard channels.
func (r *Registry) ShardChannels(pattern string) []string {
	var out []string
	for ch, subs := range r.shard {
		if len(subs) == 0 {
			continue
		}
		if pattern != "" && !glob.Match(pattern, ch) {
			continue
		}
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// NumSub returns the subscriber count of an exact channel.
func (r *Registry) NumSub(channel string) int { return len(r.channels[channel]) }

// ShardNumSub returns the subscriber count of a shard channel.
func (r *Registry) ShardNumSub(channel string) int { return len(r.shard[channel]) }

// NumPat returns the number of distinct active patterns.
func (r *Registry) NumPat() int { return len(r.patterns) }
