package value

// Hash maps fields to values. Fields may carry independent expiry
// deadlines (HEXPIRE family), tracked in milliseconds on the server
// clock; an expired field is pruned on the first access at or after
// its deadline.
type Hash struct {
	fields map[string][]byte
	ttl    map[string]int64 // field -> absolute deadline, ms
	order  []string         // insertion order for deterministic iteration
}

// NewHashData builds an empty hash.
func NewHashData() *Hash {
	return &Hash{fields: make(map[string][]byte), ttl: make(map[string]int64)}
}

// Prune removes fields whose deadline is at or before now and returns
// the names removed.
func (h *Hash) Prune(now int64) []string {
	if len(h.ttl) == 0 {
		return nil
	}
	var gone []string
	for f, dl := range h.ttl {
		if dl <= now {
			gone = append(gone, f)
		}
	}
	for _, f := range gone {
		h.remove(f)
	}
	return gone
}

// Set stores a field and reports whether it was newly created.
func (h *Hash) Set(field string, v []byte) bool {
	_, existed := h.fields[field]
	h.fields[field] = v
	if !existed {
		h.order = append(h.order, field)
	}
	return !existed
}

// Get returns a field's value.
func (h *Hash) Get(field string) ([]byte, bool) {
	v, ok := h.fields[field]
	return v, ok
}

// Delete removes a field.
func (h *Hash) Delete(field string) bool {
	if _, ok := h.fields[field]; !ok {
		return false
	}
	h.remove(field)
	return true
}

func (h *Hash) remove(field string) {
	delete(h.fields, field)
	delete(h.ttl, field)
	for i, f := range h.order {
		if f == field {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of fields.
func (h *Hash) Len() int { return len(h.fields) }

// Fields returns field names in insertion order.
func (h *Hash) Fields() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// SetTTL sets a field deadline. The field must exist.
func (h *Hash) SetTTL(field string, deadline int64) bool {
	if _, ok := h.fields[field]; !ok {
		return false
	}
	h.ttl[field] = deadline
	return true
}

// TTL returns a field's deadline, if any.
func (h *Hash) TTL(field string) (int64, bool) {
	dl, ok := h.ttl[field]
	return dl, ok
}

// Persist clears a field deadline, reporting whether one was set.
func (h *Hash) Persist(field string) bool {
	if _, ok := h.ttl[field]; !ok {
		return false
	}
	delete(h.ttl, field)
	return true
}

// Clone deep-copies the hash including field deadlines.
func (h *Hash) Clone() *Hash {
	out := NewHashData()
	out.order = append([]string(nil), h.order...)
	for f, v := range h.fields {
		out.fields[f] = append([]byte(nil), v...)
	}
	for f, dl := range h.ttl {
		out.ttl[f] = dl
	}
	return out
}

// Equal compares fields and values; deadlines are not part of value
// identity (DUMP drops them, as the payload is TTL-less).
func (h *Hash) Equal(o *Hash) bool {
	if len(h.fields) != len(o.fields) {
		return false
	}
	for f, v := range h.fields {
		ov, ok := o.fields[f]
		if !ok || string(v) != string(ov) {
			return false
		}
	}
	return true
}
