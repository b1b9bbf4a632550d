package flowdeck

// NodeType identifies a node definition in the registry.
type NodeType string

const (
	NodeTypeTrigger    NodeType = "trigger"
	NodeTypeAIAgent    NodeType = "ai-agent"
	NodeTypeAction     NodeType = "action"
	NodeTypeLogic      NodeType = "logic"
	NodeTypeSystemTool NodeType = "system-tool"
)

// Category groups node types in the builder palette.
type Category string

const (
	CategoryTrigger Category = "trigger"
	CategoryAction  Category = "action"
	CategoryAI      Category = "ai"
	CategoryLogic   Category = "logic"
	CategoryUtility Category = "utility"
)

// SubTypeField is the reserved data key that discriminates polymorphic node types.
const SubTypeField = "subType"

// PropertyKind selects the input widget used to edit a property.
type PropertyKind string

const (
	KindText     PropertyKind = "text"
	KindNumber   PropertyKind = "number"
	KindTextarea PropertyKind = "textarea"
	KindSelect   PropertyKind = "select"
	KindBoolean  PropertyKind = "boolean"
	KindCode     PropertyKind = "code"
	KindJSON     PropertyKind = "json"
)

type PropertyOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PropertySchema describes one editable field on a node.
type PropertySchema struct {
	Name         string           `json:"name"`
	Label        string           `json:"label"`
	Kind         PropertyKind     `json:"kind"`
	Options      []PropertyOption `json:"options,omitempty"`
	Placeholder  string           `json:"placeholder,omitempty"`
	HelperText   string           `json:"helperText,omitempty"`
	DefaultValue any              `json:"defaultValue,omitempty"`
}

// PortDirection tells whether a port accepts or emits connections.
type PortDirection string

const (
	PortInput  PortDirection = "input"
	PortOutput PortDirection = "output"
)

type Port struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Direction PortDirection `json:"direction"`
}

// NodeDefinition is the static description of a node type.
type NodeDefinition struct {
	Type        NodeType         `json:"type"`
	Label       string           `json:"label"`
	Category    Category         `json:"category"`
	DefaultData map[string]any   `json:"defaultData"`
	Ports       []Port           `json:"ports"`
	Properties  []PropertySchema `json:"properties"`
}

// Property returns the named property schema.
func (d *NodeDefinition) Property(name string) (PropertySchema, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySchema{}, false
}

// Port returns the port with the given id.
func (d *NodeDefinition) Port(id string) (Port, bool) {
	for _, p := range d.Ports {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// Polymorphic reports whether the type carries a subType discriminator.
func (t NodeType) Polymorphic() bool {
	switch t {
	case NodeTypeTrigger, NodeTypeAction, NodeTypeLogic:
		return true
	}
	return false
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeInstance is one node placed on a graph.
type NodeInstance struct {
	ID       string         `json:"id"`
	Type     NodeType       `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
}

// SubType returns the node's subType discriminator, or "" when unset.
func (n *NodeInstance) SubType() string {
	s, _ := n.Data[SubTypeField].(string)
	return s
}

// Endpoint names one side of an edge.
type Endpoint struct {
	NodeID string `json:"nodeId"`
	PortID string `json:"portId"`
}

type Edge struct {
	ID     string   `json:"id"`
	Source Endpoint `json:"source"`
	Target Endpoint `json:"target"`
}

// Connection is a requested edge before it has been validated.
type Connection struct {
	Source Endpoint `json:"source"`
	Target Endpoint `json:"target"`
}
