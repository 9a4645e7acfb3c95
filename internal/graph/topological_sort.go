// Package graph orders named nodes so every node comes after its
// dependencies.
package graph

import (
	"fmt"
	"slices"
	"strings"
)

type Node interface {
	GetName() string
	GetDependencies() []string
}

// TopologicalSort returns node names dependencies first. Ties are broken
// by name so the order is stable across runs.
func TopologicalSort(nodes map[string]Node) ([]string, error) {
	visited := make(map[string]bool, len(nodes))
	var path []string
	result := make([]string, 0, len(nodes))

	var visit func(string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if i := slices.Index(path, name); i >= 0 {
			cycle := append(slices.Clone(path[i:]), name)
			return fmt.Errorf("cycle detected in dependencies: %s", strings.Join(cycle, " -> "))
		}

		node, exists := nodes[name]
		if !exists {
			return fmt.Errorf("node %s not found", name)
		}

		path = append(path, name)
		deps := slices.Sorted(slices.Values(node.GetDependencies()))
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]

		visited[name] = true
		result = append(result, name)
		return nil
	}

	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func ValidateGraph(nodes map[string]Node) error {
	for name, node := range nodes {
		for _, dep := range node.GetDependencies() {
			if _, exists := nodes[dep]; !exists {
				return fmt.Errorf("node %s depends on %s which does not exist", name, dep)
			}
		}
	}
	return nil
}
