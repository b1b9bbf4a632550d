package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

// Registry holds the tools the local executor can run.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewDefaultRegistry returns a registry with every built-in tool.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&HTTPRequestTool{})
	r.Register(&GetWebpageTool{})
	r.Register(&RSSFeedTool{})
	r.Register(&EvaluateTool{})
	r.Register(&ExtractDocumentTool{})
	r.Register(&SlackMessageTool{})
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Execute(ctx, args)
}

// Catalog returns the catalog entries sorted by name.
func (r *Registry) Catalog() []flowdeck.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]flowdeck.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, flowdeck.ToolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
