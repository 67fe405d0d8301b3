package pool

import (
	"context"
	"fmt"
)

type node struct {
	name string
	fn   Task
	deps []int
}

// Graph is a DAG of tasks. A task may only depend on tasks added before it,
// which keeps the graph acyclic by construction.
type Graph struct {
	nodes []node
}

// Add registers a task and returns its id.
func (g *Graph) Add(name string, fn Task, deps ...int) int {
	id := len(g.nodes)
	for _, d := range deps {
		if d < 0 || d >= id {
			panic(fmt.Sprintf("pool: task %q depends on unknown task %d", name, d))
		}
	}
	g.nodes = append(g.nodes, node{name: name, fn: fn, deps: append([]int(nil), deps...)})
	return id
}

func (g *Graph) Len() int { return len(g.nodes) }

// TaskError reports which graph task failed.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }

type result struct {
	id  int
	err error
}

// Run executes g. A task is dispatched only after all its dependencies
// completed successfully. The first failure cancels the context passed to
// running tasks, stops further dispatch and is returned wrapped in a
// *TaskError once in-flight tasks have drained.
func (p *Pool) Run(ctx context.Context, g *Graph) error {
	n := len(g.nodes)
	if n == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := make([]int, n)
	dependents := make([][]int, n)
	var ready []int
	for id, nd := range g.nodes {
		pending[id] = len(nd.deps)
		for _, d := range nd.deps {
			dependents[d] = append(dependents[d], id)
		}
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	done := make(chan result, n)
	inFlight, completed := 0, 0
	var firstErr error

	for completed < n {
		for firstErr == nil && len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			if err := p.submit(ctx, g.nodes[id].fn, func(err error) { done <- result{id: id, err: err} }); err != nil {
				firstErr = &TaskError{Task: g.nodes[id].name, Err: err}
				cancel()
				break
			}
			inFlight++
		}
		if inFlight == 0 {
			break
		}

		r := <-done
		inFlight--
		completed++
		if r.err != nil {
			if firstErr == nil {
				firstErr = &TaskError{Task: g.nodes[r.id].name, Err: r.err}
				cancel()
			}
			continue
		}
		for _, d := range dependents[r.id] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return firstErr
}
