package flow

import (
	"fmt"
	"strings"
)

// Linearize orders task slugs so that every task comes after the tasks it
// depends on. It runs Kahn's algorithm over the recorded dependent_task_slug
// lists; ties are broken by the order in which slugs are first seen while
// scanning tasks, so the result is stable for a given input.
//
// Only KindTask nodes are considered. Dependencies naming a slug that no task
// carries are still ordered (they have no prerequisites) and are dropped by
// OrderTasks. Two tasks sharing a slug return ErrDuplicateSlug. If a cycle
// keeps some tasks from being ordered, Linearize returns a *CycleError naming
// them instead of a partial order.
func Linearize(tasks []Node) ([]string, error) {
	adj := make(map[string][]string)
	indeg := make(map[string]int)
	var seen []string
	touch := func(slug string) {
		if _, ok := indeg[slug]; !ok {
			indeg[slug] = 0
			adj[slug] = nil
			seen = append(seen, slug)
		}
	}

	taskSlugs := make(map[string]string)
	for _, n := range tasks {
		if n.Kind != KindTask || n.Task == nil {
			continue
		}
		slug := strings.TrimSpace(n.Task.Slug)
		if first, dup := taskSlugs[slug]; dup {
			return nil, &NodeError{NodeID: n.ID, Slug: slug, Err: fmt.Errorf("%w: also used by %s", ErrDuplicateSlug, first)}
		}
		touch(slug)
		taskSlugs[slug] = n.ID
		for _, dep := range n.Task.DependentTaskSlug.Slice() {
			touch(dep)
			adj[dep] = append(adj[dep], slug)
			indeg[slug]++
		}
	}

	queue := make([]string, 0, len(seen))
	for _, slug := range seen {
		if indeg[slug] == 0 {
			queue = append(queue, slug)
		}
	}

	order := make([]string, 0, len(seen))
	for len(queue) > 0 {
		top := queue[0]
		queue = queue[1:]
		order = append(order, top)
		for _, next := range adj[top] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) < len(seen) {
		var stuck []string
		for _, slug := range seen {
			if _, ok := taskSlugs[slug]; ok && indeg[slug] > 0 {
				stuck = append(stuck, slug)
			}
		}
		return nil, &CycleError{Slugs: stuck}
	}
	return order, nil
}

// OrderTasks returns the task nodes in dependency order. Slugs produced by
// Linearize that do not resolve to a task are skipped.
func OrderTasks(tasks []Node) ([]Node, error) {
	order, err := Linearize(tasks)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]Node, len(tasks))
	for _, n := range tasks {
		if n.Kind == KindTask && n.Task != nil {
			bySlug[strings.TrimSpace(n.Task.Slug)] = n
		}
	}
	out := make([]Node, 0, len(tasks))
	for _, slug := range order {
		if n, ok := bySlug[slug]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}
