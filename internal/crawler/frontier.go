package crawler

// Frontier holds addresses waiting to be fetched. The most recently pushed
// address is popped first. It is not safe for concurrent use; the Seeker
// guards it with its own lock.
type Frontier struct {
	items []Address
}

// NewFrontier creates a frontier holding seeds in order
func NewFrontier(seeds []Address) *Frontier {
	items := make([]Address, len(seeds), len(seeds)+64)
	copy(items, seeds)
	return &Frontier{items: items}
}

// PushBack appends a
func (f *Frontier) PushBack(a Address) {
	f.items = append(f.items, a)
}

// PopBack removes and returns the newest address
func (f *Frontier) PopBack() (Address, bool) {
	n := len(f.items)
	if n == 0 {
		return Address{}, false
	}
	a := f.items[n-1]
	f.items[n-1] = Address{}
	f.items = f.items[:n-1]
	return a, true
}

// Len returns the number of waiting addresses
func (f *Frontier) Len() int {
	return len(f.items)
}

// Strings lists the waiting addresses, bottom first
func (f *Frontier) Strings() []string {
	out := make([]string, len(f.items))
	for i, a := range f.items {
		out[i] = a.String()
	}
	return out
}
