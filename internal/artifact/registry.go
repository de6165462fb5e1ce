package artifact

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrCyclicDependency is returned when the kind table contains a
	// prerequisite cycle. The table is fixed at registration, so hitting
	// this is a configuration-integrity failure, not a runtime condition.
	ErrCyclicDependency = errors.New("artifact: cyclic dependency in kind registry")

	// ErrUnknownKind is returned when a kind name is not registered.
	ErrUnknownKind = errors.New("artifact: unknown kind")
)

// Registry is the immutable set of artifact kinds and their prerequisite
// edges. It is constructed once at startup and passed explicitly to the
// resolver and flow runner; tests build alternate registries in isolation.
type Registry struct {
	specs map[Kind]Spec
	order []Kind       // registration order = canonical generation order
	pos   map[Kind]int // kind -> canonical position
}

// NewRegistry validates the spec table and builds a Registry. It rejects
// duplicate names, prerequisites that reference unregistered kinds, and
// cyclic prerequisite graphs.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{
		specs: make(map[Kind]Spec, len(specs)),
		order: make([]Kind, 0, len(specs)),
		pos:   make(map[Kind]int, len(specs)),
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("artifact: spec with empty name")
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("artifact: duplicate kind %q", s.Name)
		}
		r.specs[s.Name] = s
		r.pos[s.Name] = len(r.order)
		r.order = append(r.order, s.Name)
	}
	for _, s := range specs {
		for _, req := range s.Requires {
			if _, ok := r.specs[req]; !ok {
				return nil, fmt.Errorf("%w: %q required by %q", ErrUnknownKind, req, s.Name)
			}
		}
	}
	// Full-graph order check doubles as cycle detection.
	if _, err := r.topoSort(r.order); err != nil {
		return nil, err
	}
	return r, nil
}

// Spec returns the declaration for a kind.
func (r *Registry) Spec(k Kind) (Spec, bool) {
	s, ok := r.specs[k]
	return s, ok
}

// Has reports whether the kind is registered.
func (r *Registry) Has(k Kind) bool {
	_, ok := r.specs[k]
	return ok
}

// Kinds returns all registered kinds in canonical order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve expands the requested kinds to their transitive prerequisite
// closure and returns them in dependency order. Duplicates in the request
// are ignored. Ties between independent kinds are broken by canonical
// registry position, so the same request always yields the same order.
// Resolve is pure: no I/O, no generation.
func (r *Registry) Resolve(requested []Kind) ([]Kind, error) {
	closure := make(map[Kind]bool)
	var expand func(k Kind) error
	expand = func(k Kind) error {
		if closure[k] {
			return nil
		}
		s, ok := r.specs[k]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKind, k)
		}
		closure[k] = true
		for _, req := range s.Requires {
			if err := expand(req); err != nil {
				return err
			}
		}
		return nil
	}
	for _, k := range requested {
		if err := expand(k); err != nil {
			return nil, err
		}
	}

	kinds := make([]Kind, 0, len(closure))
	for k := range closure {
		kinds = append(kinds, k)
	}
	return r.topoSort(kinds)
}

// topoSort orders kinds so every kind appears after all of its
// prerequisites that are present in the set, picking the lowest canonical
// position among ready kinds at each step (Kahn's algorithm with a
// deterministic tiebreak). Returns ErrCyclicDependency if no progress can
// be made.
func (r *Registry) topoSort(kinds []Kind) ([]Kind, error) {
	inSet := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		inSet[k] = true
	}

	pending := make([]Kind, len(kinds))
	copy(pending, kinds)
	sort.Slice(pending, func(i, j int) bool { return r.pos[pending[i]] < r.pos[pending[j]] })

	emitted := make(map[Kind]bool, len(kinds))
	out := make([]Kind, 0, len(kinds))

	for len(out) < len(kinds) {
		progressed := false
		for _, k := range pending {
			if emitted[k] {
				continue
			}
			ready := true
			for _, req := range r.specs[k].Requires {
				if inSet[req] && !emitted[req] {
					ready = false
					break
				}
			}
			if ready {
				emitted[k] = true
				out = append(out, k)
				progressed = true
			}
		}
		if !progressed {
			return nil, ErrCyclicDependency
		}
	}
	return out, nil
}
