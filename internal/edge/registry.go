package edge

import (
	"fmt"
	"sort"
	"sync"
)

// Registry records which owner holds each line.
// Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	owners map[int]any
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[int]any)}
}

// Claim assigns line to owner. A second claim for the same line fails with
// ErrLineClaimed, even when it comes from the current owner.
func (r *Registry) Claim(line int, owner any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[line]; ok {
		return fmt.Errorf("line %d: %w", line, ErrLineClaimed)
	}
	r.owners[line] = owner
	return nil
}

// Release frees line. Releasing an unclaimed line is a no-op.
func (r *Registry) Release(line int) {
	r.mu.Lock()
	delete(r.owners, line)
	r.mu.Unlock()
}

// Owner returns the owner of line and whether it is claimed.
func (r *Registry) Owner(line int) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[line]
	return owner, ok
}

// Lines returns the claimed lines in ascending order.
func (r *Registry) Lines() []int {
	r.mu.Lock()
	lines := make([]int, 0, len(r.owners))
	for line := range r.owners {
		lines = append(lines, line)
	}
	r.mu.Unlock()

	sort.Ints(lines)
	return lines
}
