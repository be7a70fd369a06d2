package dedup

// Registry remembers the invoice numbers seen during one batch run. It is
// not safe for concurrent use; numbers must be registered in document order.
type Registry struct {
	seen map[string]struct{}
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]struct{})}
}

// CheckAndRegister reports whether number was already registered. The first
// occurrence registers it and returns false.
func (r *Registry) CheckAndRegister(number string) bool {
	if _, ok := r.seen[number]; ok {
		return true
	}
	r.seen[number] = struct{}{}
	return false
}

// Len returns the number of distinct invoice numbers registered
func (r *Registry) Len() int {
	return len(r.seen)
}
