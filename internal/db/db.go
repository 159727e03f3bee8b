// Package db implements one numbered keyspace: key to value, an
// expiry index, per-key version counters for WATCH, and cursor state
// for incremental scans.
//
// The keyspace performs lazy expiry: every access first resolves the
// key's deadline against the supplied clock reading and removes the
// key if it has passed, reporting the removal through the OnExpired
// hook so the owner can emit the keyspace notification and bump the
// version before the caller observes absence.
package db

import (
	"sort"

	"github.com/yndnr/redsim-go/internal/value"
)

// DB is a single numbered keyspace.
type DB struct {
	Index int

	keys     map[string]*value.Value
	order    []string // insertion order; RANDOMKEY and KEYS iterate it
	expires  map[string]int64
	versions map[string]uint64

	cursors    map[uint64]*Cursor
	nextCursor uint64

	// OnExpired is invoked after a key is removed by lazy expiry or a
	// sweep, before the triggering operation proceeds.
	OnExpired func(key string)
}

// Cursor is saved scan state: the owning key for collection scans
// (empty for keyspace scans) and the last name returned. Resuming
// after a name rather than an offset keeps the scan guarantee: a key
// present for the whole scan is returned at least once, however the
// collection churns in between.
type Cursor struct {
	Key  string
	Last string
}

// maxCursors bounds abandoned scan state; the oldest cursors are
// dropped past it, which a resumed scan observes as a reset.
const maxCursors = 128

// New creates an empty keyspace.
func New(index int) *DB {
	return &DB{
		Index:    index,
		keys:     make(map[string]*value.Value),
		expires:  make(map[string]int64),
		versions: make(map[string]uint64),
		cursors:  make(map[uint64]*Cursor),
	}
}

// checkExpired removes key if its deadline has passed.
func (d *DB) checkExpired(key string, now int64) {
	dl, ok := d.expires[key]
	if !ok || dl > now {
		return
	}
	d.removeKey(key)
	d.Bump(key)
	if d.OnExpired != nil {
		d.OnExpired(key)
	}
}

func (d *DB) removeKey(key string) {
	delete(d.keys, key)
	delete(d.expires, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Get resolves expiry and returns the live value under key.
func (d *DB) Get(key string, now int64) (*value.Value, bool) {
	d.checkExpired(key, now)
	v, ok := d.keys[key]
	return v, ok
}

// Exists resolves expiry and reports presence.
func (d *DB) Exists(key string, now int64) bool {
	_, ok := d.Get(key, now)
	return ok
}

// Set stores a value under key, clearing any deadline. Versions are
// the caller's concern (see Bump).
func (d *DB) Set(key string, v *value.Value) {
	if _, ok := d.keys[key]; !ok {
		d.order = append(d.order, key)
	}
	d.keys[key] = v
	delete(d.expires, key)
}

// SetKeepTTL stores a value under key, preserving its deadline.
func (d *DB) SetKeepTTL(key string, v *value.Value) {
	if _, ok := d.keys[key]; !ok {
		d.order = append(d.order, key)
	}
	d.keys[key] = v
}

// Delete removes a key, reporting whether it was present. Expiry is
// not resolved first; callers that need the live view use Get.
func (d *DB) Delete(key string) bool {
	if _, ok := d.keys[key]; !ok {
		return false
	}
	d.removeKey(key)
	return true
}

// Len returns the number of live keys, sweeping expired ones.
func (d *DB) Len(now int64) int {
	d.sweep(now)
	return len(d.keys)
}

// Keys returns all live key names in insertion order.
func (d *DB) Keys(now int64) []string {
	d.sweep(now)
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// KeysSorted returns all live key names sorted lexicographically.
func (d *DB) KeysSorted(now int64) []string {
	out := d.Keys(now)
	sort.Strings(out)
	return out
}

func (d *DB) sweep(now int64) {
	var gone []string
	for k, dl := range d.expires {
		if dl <= now {
			gone = append(gone, k)
		}
	}
	for _, k := range gone {
		d.checkExpired(k, now)
	}
}

// SweepExpired removes every key whose deadline has passed and
// returns how many were dropped. The periodic sweeper calls this.
func (d *DB) SweepExpired(now int64) int {
	before := len(d.keys)
	d.sweep(now)
	return before - len(d.keys)
}

// Expire sets an absolute deadline on a live key.
func (d *DB) Expire(key string, deadline int64, now int64) bool {
	if !d.Exists(key, now) {
		return false
	}
	d.expires[key] = deadline
	return true
}

// Deadline returns the key's absolute deadline, if one is set.
func (d *DB) Deadline(key string) (int64, bool) {
	dl, ok := d.expires[key]
	return dl, ok
}

// Persist clears the deadline, reporting whether one was set.
func (d *DB) Persist(key string) bool {
	if _, ok := d.expires[key]; !ok {
		return false
	}
	delete(d.expires, key)
	return true
}

// Rename moves src to dst, carrying value and deadline. The versions
// of both keys are bumped by the caller.
func (d *DB) Rename(src, dst string) {
	v := d.keys[src]
	dl, hadTTL := d.expires[src]
	d.removeKey(src)
	d.Set(dst, v)
	if hadTTL {
		d.expires[dst] = dl
	}
}

// Bump increments the key's version. Every write-class modification
// routes through here so WATCH observes it.
func (d *DB) Bump(key string) {
	d.versions[key]++
}

// Version returns the key's current version.
func (d *DB) Version(key string) uint64 {
	return d.versions[key]
}

// Flush drops all keys, deadlines and cursors. Versions survive so
// watchers of flushed keys still observe the change.
func (d *DB) Flush() {
	for _, k := range d.order {
		d.Bump(k)
	}
	d.keys = make(map[string]*value.Value)
	d.order = nil
	d.expires = make(map[string]int64)
	d.cursors = make(map[uint64]*Cursor)
}

// ============================================================
// Scan cursors
// ============================================================

// SaveCursor registers scan state and returns its cursor id.
func (d *DB) SaveCursor(c *Cursor) uint64 {
	if len(d.cursors) >= maxCursors {
		lowest := uint64(0)
		for id := range d.cursors {
			if lowest == 0 || id < lowest {
				lowest = id
			}
		}
		delete(d.cursors, lowest)
	}
	d.nextCursor++
	d.cursors[d.nextCursor] = c
	return d.nextCursor
}

// LoadCursor resolves a cursor id; a stale or unknown id yields nil
// and the scan restarts.
func (d *DB) LoadCursor(id uint64) *Cursor {
	c := d.cursors[id]
	delete(d.cursors, id)
	return c
}

// ScanAfter walks sorted names and returns up to count entries
// following after (empty means from the start), plus the name to
// resume from and whether the scan is complete.
func ScanAfter(sorted []string, after string, count int) (batch []string, last string, done bool) {
	start := 0
	if after != "" {
		start = sort.SearchStrings(sorted, after)
		if start < len(sorted) && sorted[start] == after {
			start++
		}
	}
	if count <= 0 {
		count = 10
	}
	end := start + count
	if end >= len(sorted) {
		return sorted[start:], "", true
	}
	return sorted[start:end], sorted[end-1], false
}
