package problems

import (
	"fmt"
	"sort"
)

type Registry struct {
	problems map[string]func() *Problem
}

func NewRegistry() *Registry {
	r := &Registry{problems: make(map[string]func() *Problem)}

	r.problems["exp0"] = NewEXP0
	r.problems["exp0_constrained"] = NewEXP0Constrained
	r.problems["exp1"] = NewEXP1

	return r
}

// Register adds or replaces a problem constructor.
func (r *Registry) Register(name string, fn func() *Problem) {
	r.problems[name] = fn
}

func (r *Registry) Get(name string) (*Problem, error) {
	fn, ok := r.problems[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s", name)
	}
	return fn(), nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.problems))
	for name := range r.problems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
