// Package form computes the editable field list of a node instance.
//
// Resolution is a pure function of the node, its definition and the tool
// catalog: the static schema is filtered through the sub-type visibility
// table and, for system-tool nodes, extended with the selected tool's
// parameters. Nothing here mutates a NodeDefinition.
package form

import (
	"fmt"
	"sort"
	"strings"

	"github.com/soochol/flowdeck/internal/flowdeck"
	"github.com/soochol/flowdeck/internal/nodetypes"
)

// OptionalMarker is the helper text set on optional catalog parameters.
const OptionalMarker = "(optional)"

// reservedParameters are tool parameters filled by the executor, never by the user.
var reservedParameters = map[string]bool{"credentials": true, "userId": true}

// VisibleField is one field the builder should render for a node.
type VisibleField struct {
	flowdeck.PropertySchema
	Value    any  `json:"value,omitempty"`
	Optional bool `json:"optional,omitempty"`
	Disabled bool `json:"disabled,omitempty"`
	// Dynamic marks fields derived from the tool catalog rather than the static schema.
	Dynamic bool `json:"dynamic,omitempty"`
}

// Form is the rendering contract for a node, including the fallback used
// when the node's type is not in the registry.
type Form struct {
	NodeID  string            `json:"nodeId"`
	Type    flowdeck.NodeType `json:"type"`
	Fields  []VisibleField    `json:"fields"`
	Legacy  bool              `json:"legacy,omitempty"`
	Warning string            `json:"warning,omitempty"`
}

// Resolve returns the ordered visible fields of node under def.
func Resolve(node flowdeck.NodeInstance, def flowdeck.NodeDefinition, catalog []flowdeck.ToolInfo) []VisibleField {
	subType := node.SubType()
	schema := def.Properties
	if def.Type == flowdeck.NodeTypeSystemTool {
		schema = withCatalogOptions(schema, catalog)
		if name, _ := node.Data[nodetypes.ToolNameField].(string); name != "" {
			if tool, ok := flowdeck.FindTool(catalog, name); ok {
				schema = ExtendSchema(schema, tool)
			}
		}
	}

	fields := make([]VisibleField, 0, len(schema))
	for _, p := range schema {
		if node.Type.Polymorphic() && Hidden(node.Type, subType, p.Name) {
			continue
		}
		f := VisibleField{PropertySchema: p, Value: node.Data[p.Name]}
		if p.HelperText == OptionalMarker {
			f.Optional = true
		}
		if p.Kind == flowdeck.KindSelect && len(p.Options) == 0 {
			f.Disabled = true
		}
		if isDynamic(def, p.Name) {
			f.Dynamic = true
		}
		fields = append(fields, f)
	}
	return fields
}

// Lookup is the registry capability ResolveForm needs.
type Lookup interface {
	Lookup(t flowdeck.NodeType) (flowdeck.NodeDefinition, error)
}

// ResolveForm resolves node against the registry. Unknown types fall back to
// a legacy form with the raw label and a warning instead of failing.
func ResolveForm(reg Lookup, node flowdeck.NodeInstance, catalog []flowdeck.ToolInfo) Form {
	def, err := reg.Lookup(node.Type)
	if err != nil {
		label, _ := node.Data["label"].(string)
		return Form{
			NodeID:  node.ID,
			Type:    node.Type,
			Legacy:  true,
			Warning: fmt.Sprintf("node type %q is not supported by this builder; its data is kept unchanged", node.Type),
			Fields: []VisibleField{{
				PropertySchema: flowdeck.PropertySchema{Name: "label", Label: "Label", Kind: flowdeck.KindText},
				Value:          label,
			}},
		}
	}
	return Form{NodeID: node.ID, Type: node.Type, Fields: Resolve(node, def, catalog)}
}

// ExtendSchema returns base followed by one field per parameter of tool, in
// parameter-name order, skipping reserved parameters and names already in
// base. base is not modified.
func ExtendSchema(base []flowdeck.PropertySchema, tool flowdeck.ToolInfo) []flowdeck.PropertySchema {
	taken := make(map[string]bool, len(base))
	for _, p := range base {
		taken[p.Name] = true
	}
	names := make([]string, 0, len(tool.Parameters))
	for name := range tool.Parameters {
		if reservedParameters[name] || taken[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]flowdeck.PropertySchema, 0, len(base)+len(names))
	out = append(out, base...)
	for _, name := range names {
		typ := strings.ToLower(tool.Parameters[name])
		p := flowdeck.PropertySchema{Name: name, Label: name, Kind: flowdeck.KindText, Placeholder: tool.Parameters[name]}
		if strings.Contains(typ, "number") {
			p.Kind = flowdeck.KindNumber
		}
		if strings.Contains(typ, "opcional") || strings.Contains(typ, "optional") {
			p.HelperText = OptionalMarker
		}
		out = append(out, p)
	}
	return out
}

// withCatalogOptions injects live tool options into the toolName select
// when the static definition carries none.
func withCatalogOptions(schema []flowdeck.PropertySchema, catalog []flowdeck.ToolInfo) []flowdeck.PropertySchema {
	out := make([]flowdeck.PropertySchema, len(schema))
	copy(out, schema)
	for i := range out {
		if out[i].Name != nodetypes.ToolNameField || len(out[i].Options) > 0 || len(catalog) == 0 {
			continue
		}
		tmp := nodetypes.WithToolOptions(flowdeck.NodeDefinition{Properties: []flowdeck.PropertySchema{out[i]}}, catalog)
		out[i] = tmp.Properties[0]
	}
	return out
}

func isDynamic(def flowdeck.NodeDefinition, name string) bool {
	if def.Type != flowdeck.NodeTypeSystemTool {
		return false
	}
	_, static := def.Property(name)
	return !static
}
