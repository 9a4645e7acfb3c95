// Package components initializes the long-lived resources of the bot in
// dependency order and closes them in reverse.
package components

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"feedmirror/internal/graph"
)

const (
	StorageComponentName  = "storage"
	PlatformComponentName = "platform"
)

type IComponent interface {
	Name() string
	Dependencies() []string
	Validate() error
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
}

type Registry struct {
	components map[string]IComponent
	order      []string
	logger     *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		components: make(map[string]IComponent),
		order:      make([]string, 0),
		logger:     logger,
	}
}

func (r *Registry) Register(component IComponent) error {
	name := component.Name()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.components[name] = component
	return nil
}

// Get returns the named component, or nil when it was never registered.
func (r *Registry) Get(name string) IComponent {
	return r.components[name]
}

func (r *Registry) InitializeAll(ctx context.Context) error {
	nodes := make(map[string]graph.Node, len(r.components))
	for name, comp := range r.components {
		nodes[name] = &componentNode{comp: comp}
	}

	if err := graph.ValidateGraph(nodes); err != nil {
		return err
	}
	order, err := graph.TopologicalSort(nodes)
	if err != nil {
		return err
	}

	for _, name := range order {
		comp := r.components[name]
		if err := comp.Validate(); err != nil {
			return fmt.Errorf("component %s validation failed: %w", name, err)
		}
	}

	for _, name := range order {
		comp := r.components[name]
		if err := comp.Initialize(ctx); err != nil {
			r.closeInitialized(ctx)
			return fmt.Errorf("component %s initialization failed: %w", name, err)
		}
		r.order = append(r.order, name)
		r.logger.Debug("component initialized", zap.String("component", name))
	}

	return nil
}

type componentNode struct {
	comp IComponent
}

func (cn *componentNode) GetName() string {
	return cn.comp.Name()
}

func (cn *componentNode) GetDependencies() []string {
	return cn.comp.Dependencies()
}

func (r *Registry) CloseAll(ctx context.Context) error {
	r.closeInitialized(ctx)
	return nil
}

func (r *Registry) closeInitialized(ctx context.Context) {
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if err := r.components[name].Close(ctx); err != nil {
			r.logger.Warn("failed to close component", zap.String("component", name), zap.Error(err))
		}
	}
	r.order = r.order[:0]
}
