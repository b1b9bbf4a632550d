// Package nodetypes holds the catalog of node definitions offered by the builder.
package nodetypes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/flowdeck/ports"
)

// Registry is read-only after construction except for the system-tool
// definition, which is replaced wholesale when the tool catalog is refreshed.
// Every value handed out is a deep copy, so callers may mutate freely.
type Registry struct {
	mu    sync.RWMutex
	order []flowdeck.NodeType
	defs  map[flowdeck.NodeType]flowdeck.NodeDefinition
	tools []flowdeck.ToolInfo
}

// NewRegistry creates a registry seeded with the built-in node types.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[flowdeck.NodeType]flowdeck.NodeDefinition)}
	for _, d := range builtins() {
		r.order = append(r.order, d.Type)
		r.defs[d.Type] = d
	}
	return r
}

// Lookup returns the definition of the given type.
func (r *Registry) Lookup(t flowdeck.NodeType) (flowdeck.NodeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[t]
	if !ok {
		return flowdeck.NodeDefinition{}, fmt.Errorf("%w: %q", flowdeck.ErrUnknownNodeType, t)
	}
	return cloneDefinition(d), nil
}

// List returns all definitions in palette order.
func (r *Registry) List() []flowdeck.NodeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]flowdeck.NodeDefinition, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, cloneDefinition(r.defs[t]))
	}
	return out
}

// Tools returns the catalog captured by the last successful refresh.
func (r *Registry) Tools() []flowdeck.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]flowdeck.ToolInfo(nil), r.tools...)
}

// RefreshTools fetches the tool catalog and installs a new system-tool
// definition whose toolName options list the fetched tools. On failure the
// current definition is kept and an ErrCatalogUnavailable error is returned.
func (r *Registry) RefreshTools(ctx context.Context, catalog ports.ToolCatalog) error {
	tools, err := catalog.ListTools(ctx)
	if err != nil {
		slog.Warn("tool catalog refresh failed", "err", err)
		return fmt.Errorf("%w: %v", flowdeck.ErrCatalogUnavailable, err)
	}
	r.SetTools(tools)
	return nil
}

// SetTools installs an already-fetched catalog.
func (r *Registry) SetTools(tools []flowdeck.ToolInfo) {
	sorted := append([]flowdeck.ToolInfo(nil), tools...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	r.mu.Lock()
	defer r.mu.Unlock()
	base := r.defs[flowdeck.NodeTypeSystemTool]
	r.defs[flowdeck.NodeTypeSystemTool] = WithToolOptions(base, sorted)
	r.tools = sorted
	slog.Info("tool catalog refreshed", "tools", len(sorted))
}

// WithToolOptions returns a copy of def whose toolName property lists the
// given tools. def itself is left untouched.
func WithToolOptions(def flowdeck.NodeDefinition, tools []flowdeck.ToolInfo) flowdeck.NodeDefinition {
	out := cloneDefinition(def)
	for i := range out.Properties {
		if out.Properties[i].Name != ToolNameField {
			continue
		}
		opts := make([]flowdeck.PropertyOption, 0, len(tools))
		for _, t := range tools {
			label := t.Name
			if t.Description != "" {
				label = t.Name + " — " + t.Description
			}
			opts = append(opts, flowdeck.PropertyOption{Label: label, Value: t.Name})
		}
		out.Properties[i].Options = opts
	}
	return out
}

func cloneDefinition(d flowdeck.NodeDefinition) flowdeck.NodeDefinition {
	out := d
	out.DefaultData = CloneData(d.DefaultData)
	out.Ports = append([]flowdeck.Port(nil), d.Ports...)
	out.Properties = make([]flowdeck.PropertySchema, len(d.Properties))
	for i, p := range d.Properties {
		p.Options = append([]flowdeck.PropertyOption(nil), p.Options...)
		out.Properties[i] = p
	}
	return out
}

// CloneData deep-copies a node data map, including nested maps and slices.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneData(val)
	case []any:
		cp := make([]any, len(val))
		for i, e := range val {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}
