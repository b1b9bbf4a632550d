package tools

import "context"

// Tool is one entry in the local executor's catalog. Parameters maps a
// parameter name to a free-form type string ("string", "number (optional)").
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]string
	Execute(ctx context.Context, args map[string]any) (any, error)
}
